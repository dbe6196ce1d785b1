package neis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/hsportal/portal/internal/profile"
)

const (
	dateLayout   = "20060102"
	timetableTTL = 24 * time.Hour
	mealTTL      = time.Hour
)

// KST is the school's time zone. Korea observes no daylight saving.
var KST = time.FixedZone("KST", 9*60*60)

var mealLabels = map[int]string{1: "조식", 2: "중식", 3: "석식"}

// Meals is one day of cafeteria menus.
type Meals struct {
	Date      string   `json:"date"`
	Breakfast []string `json:"breakfast"`
	Lunch     []string `json:"lunch"`
	Dinner    []string `json:"dinner"`
}

// Timetable is a Monday to Friday grid keyed by weekday then period.
type Timetable struct {
	Grade        int                       `json:"grade"`
	Class        int                       `json:"class"`
	From         string                    `json:"from"`
	To           string                    `json:"to"`
	Days         map[string]map[int]string `json:"days"`
	SubjectCells map[string][]int          `json:"subjectCells"`
}

// Source is the subset of Client the service reads from.
type Source interface {
	MealRows(ctx context.Context, date string) (map[int][]string, error)
	Lessons(ctx context.Context, grade, class int, from, to string) ([]Lesson, error)
}

// Service caches meals and timetables read from a Source.
type Service struct {
	source     Source
	meals      *ttlcache.Cache[string, Meals]
	timetables *ttlcache.Cache[string, Timetable]
	now        func() time.Time
	logger     *slog.Logger
}

// NewService builds a Service over source.
func NewService(source Source, logger *slog.Logger) *Service {
	return &Service{
		source:     source,
		meals:      ttlcache.New(ttlcache.WithTTL[string, Meals](mealTTL), ttlcache.WithDisableTouchOnHit[string, Meals]()),
		timetables: ttlcache.New(ttlcache.WithTTL[string, Timetable](timetableTTL), ttlcache.WithDisableTouchOnHit[string, Timetable]()),
		now:        time.Now,
		logger:     logger,
	}
}

// Start runs the cache janitors until Stop.
func (s *Service) Start() {
	go s.meals.Start()
	go s.timetables.Start()
}

// Stop must only be called after Start.
func (s *Service) Stop() {
	s.meals.Stop()
	s.timetables.Stop()
}

// Today returns the current date in the school's time zone.
func (s *Service) Today() string {
	return s.now().In(KST).Format(dateLayout)
}

// Meals returns the menus for date (YYYYMMDD). Upstream failures are
// logged and yield empty menus; they are not cached.
func (s *Service) Meals(ctx context.Context, date string) Meals {
	if item := s.meals.Get(date); item != nil {
		return item.Value()
	}

	m := Meals{Date: date, Breakfast: []string{}, Lunch: []string{}, Dinner: []string{}}
	rows, err := s.source.MealRows(ctx, date)
	if err != nil {
		s.logger.Warn("meal lookup failed", slog.String("date", date), slog.String("error", err.Error()))
		return m
	}
	for code, dishes := range rows {
		switch mealLabels[code] {
		case "조식":
			m.Breakfast = dishes
		case "중식":
			m.Lunch = dishes
		case "석식":
			m.Dinner = dishes
		}
	}
	s.meals.Set(date, m, ttlcache.DefaultTTL)
	return m
}

// Week returns Monday and Friday of the week containing now.
func Week(now time.Time) (from, to string) {
	day := now.In(KST)
	monday := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	return monday.Format(dateLayout), monday.AddDate(0, 0, 4).Format(dateLayout)
}

// Timetable returns the current week's grid for p, with elective cells
// replaced by p's track choices.
func (s *Service) Timetable(ctx context.Context, p profile.Profile) Timetable {
	from, to := Week(s.now())
	key := timetableKey(p, from)
	if item := s.timetables.Get(key); item != nil {
		return item.Value()
	}

	t := Timetable{
		Grade:        p.Grade,
		Class:        p.Class,
		From:         from,
		To:           to,
		Days:         make(map[string]map[int]string),
		SubjectCells: make(map[string][]int),
	}
	lessons, err := s.source.Lessons(ctx, p.Grade, p.Class, from, to)
	if err != nil {
		s.logger.Warn("timetable lookup failed",
			slog.Int("grade", p.Grade),
			slog.Int("class", p.Class),
			slog.String("error", err.Error()),
		)
	}
	for _, l := range lessons {
		day, ok := weekday(l.Date)
		if !ok {
			continue
		}
		cell := l.Subject
		if l.Teacher != "" {
			cell = fmt.Sprintf("%s (%s)", l.Subject, l.Teacher)
		}
		row(t.Days, day)[l.Period] = cell
	}
	overlayElectives(&t, p)

	if err == nil {
		s.timetables.Set(key, t, ttlcache.DefaultTTL)
	}
	return t
}

func overlayElectives(t *Timetable, p profile.Profile) {
	for day, slots := range electiveSlots[p.Grade][p.Class] {
		periods := make([]int, 0, len(slots))
		for period, track := range slots {
			subject, ok := p.Elective(track)
			if !ok {
				continue
			}
			row(t.Days, day)[period] = subject
			periods = append(periods, period)
		}
		if len(periods) > 0 {
			sort.Ints(periods)
			t.SubjectCells[day] = periods
		}
	}
}

func row(days map[string]map[int]string, day string) map[int]string {
	r, ok := days[day]
	if !ok {
		r = make(map[int]string)
		days[day] = r
	}
	return r
}

func weekday(date string) (string, bool) {
	d, err := time.ParseInLocation(dateLayout, date, KST)
	if err != nil {
		return "", false
	}
	return koreanDays[d.Weekday()], true
}

func timetableKey(p profile.Profile, week string) string {
	tracks := make([]string, 0, len(p.Subjects))
	for track, subject := range p.Subjects {
		tracks = append(tracks, track+"="+subject)
	}
	sort.Strings(tracks)
	return fmt.Sprintf("%d/%d/%s/%s", p.Grade, p.Class, week, strings.Join(tracks, ","))
}
