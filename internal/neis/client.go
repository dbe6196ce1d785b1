// Package neis reads cafeteria meals and class timetables from the
// education office open API and shapes them for the home page widgets.
package neis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hsportal/portal/internal/config"
)

const noData = "INFO-200"

// ErrUpstream wraps failures reported by the open API.
var ErrUpstream = errors.New("neis: upstream error")

// Client calls the open API for one school.
type Client struct {
	http    *http.Client
	baseURL string
	key     string
	office  string
	school  string
}

// NewClient builds a client. httpClient may be nil.
func NewClient(httpClient *http.Client, cfg config.NeisConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		key:     cfg.APIKey,
		office:  cfg.OfficeCode,
		school:  cfg.SchoolCode,
	}
}

type mealRow struct {
	Date   string `json:"MLSV_YMD"`
	Code   string `json:"MMEAL_SC_CODE"`
	Dishes string `json:"DDISH_NM"`
}

type lessonRow struct {
	Date    string `json:"ALL_TI_YMD"`
	Period  string `json:"PERIO"`
	Subject string `json:"ITRT_CNTNT"`
	Teacher string `json:"TCHR_NM"`
}

// Lesson is one period of the official timetable.
type Lesson struct {
	Date    string
	Period  int
	Subject string
	Teacher string
}

// MealRows returns the meals served on date (YYYYMMDD) keyed by meal code.
func (c *Client) MealRows(ctx context.Context, date string) (map[int][]string, error) {
	rows, err := fetch[mealRow](ctx, c, "mealServiceDietInfo", url.Values{"MLSV_YMD": {date}})
	if err != nil {
		return nil, err
	}
	meals := make(map[int][]string, len(rows))
	for _, r := range rows {
		code, err := strconv.Atoi(r.Code)
		if err != nil {
			continue
		}
		meals[code] = splitDishes(r.Dishes)
	}
	return meals, nil
}

// Lessons returns the timetable of grade/class between from and to
// (YYYYMMDD, inclusive).
func (c *Client) Lessons(ctx context.Context, grade, class int, from, to string) ([]Lesson, error) {
	rows, err := fetch[lessonRow](ctx, c, "hisTimetable", url.Values{
		"GRADE":       {strconv.Itoa(grade)},
		"CLASS_NM":    {strconv.Itoa(class)},
		"TI_FROM_YMD": {from},
		"TI_TO_YMD":   {to},
	})
	if err != nil {
		return nil, err
	}
	lessons := make([]Lesson, 0, len(rows))
	for _, r := range rows {
		period, err := strconv.Atoi(strings.TrimSpace(r.Period))
		if err != nil {
			continue
		}
		lessons = append(lessons, Lesson{
			Date:    r.Date,
			Period:  period,
			Subject: strings.TrimSpace(r.Subject),
			Teacher: strings.TrimSpace(r.Teacher),
		})
	}
	return lessons, nil
}

type result struct {
	Code    string `json:"CODE"`
	Message string `json:"MESSAGE"`
}

// fetch calls dataset and collects the rows of every page section. The API
// answers "no data" with a top-level RESULT instead of an empty list.
func fetch[T any](ctx context.Context, c *Client, dataset string, params url.Values) ([]T, error) {
	params.Set("Type", "json")
	params.Set("pSize", "100")
	params.Set("ATPT_OFCDC_SC_CODE", c.office)
	params.Set("SD_SCHUL_CODE", c.school)
	if c.key != "" {
		params.Set("KEY", c.key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+dataset+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstream, dataset, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrUpstream, dataset, resp.StatusCode)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrUpstream, dataset, err)
	}
	if raw, ok := body["RESULT"]; ok {
		var res result
		_ = json.Unmarshal(raw, &res)
		if res.Code == noData {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %s %s", ErrUpstream, dataset, res.Code, res.Message)
	}

	var sections []struct {
		Row []T `json:"row"`
	}
	if err := json.Unmarshal(body[dataset], &sections); err != nil {
		return nil, fmt.Errorf("%w: %s: decode sections: %v", ErrUpstream, dataset, err)
	}
	var rows []T
	for _, s := range sections {
		rows = append(rows, s.Row...)
	}
	return rows, nil
}

func splitDishes(s string) []string {
	parts := strings.Split(strings.ReplaceAll(s, "<br />", "<br/>"), "<br/>")
	dishes := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			dishes = append(dishes, p)
		}
	}
	return dishes
}
