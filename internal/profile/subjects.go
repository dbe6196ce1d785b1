package profile

import "sort"

// electiveOptions lists the subjects offered on each track per grade.
// First-year students have no electives.
var electiveOptions = map[int]map[string][]string{
	2: {
		"A": {"지구과학", "물리학", "화학", "생명과학"},
		"B": {"여행지리", "세계사", "동아시아사", "경제"},
		"C": {"심리학", "정치와법", "사회문화", "윤리와사상"},
		"D": {"정보과학", "프로그래밍", "인공지능기초", "데이터과학"},
	},
	3: {
		"A": {"고급물리학", "고급화학", "고급생명과학", "고급지구과학"},
		"B": {"미적분", "기하", "확률과통계", "수학과제탐구"},
		"C": {"영어권문화", "진로영어", "영미문학읽기", "영어회화"},
		"D": {"프로그래밍", "인공지능기초", "정보과학", "데이터과학"},
	},
}

// Track is one elective track and its options.
type Track struct {
	Code    string   `json:"code"`
	Options []string `json:"options"`
}

// Tracks returns the elective tracks for grade in code order.
func Tracks(grade int) []Track {
	byCode := electiveOptions[grade]
	codes := make([]string, 0, len(byCode))
	for code := range byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make([]Track, 0, len(codes))
	for _, code := range codes {
		opts := make([]string, len(byCode[code]))
		copy(opts, byCode[code])
		out = append(out, Track{Code: code, Options: opts})
	}
	return out
}

func validElective(grade int, track, subject string) bool {
	for _, opt := range electiveOptions[grade][track] {
		if opt == subject {
			return true
		}
	}
	return false
}
