package neis

// electiveSlots maps grade → class → weekday → period → elective track.
// Those cells show the subject the student picked on that track instead of
// the official class timetable.
var electiveSlots = map[int]map[int]map[string]map[int]string{
	2: {
		9: {
			"월": {2: "A", 3: "A", 6: "C", 7: "D"},
			"화": {1: "B", 2: "B"},
			"수": {6: "A"},
			"목": {2: "D", 3: "D", 7: "B"},
			"금": {1: "C", 2: "C"},
		},
	},
	3: {},
}

// Weekdays lists the school days in display order.
var Weekdays = []string{"월", "화", "수", "목", "금"}

// Periods is the number of periods per day.
const Periods = 7

var koreanDays = [...]string{"일", "월", "화", "수", "목", "금", "토"}
