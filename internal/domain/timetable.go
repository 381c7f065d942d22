package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ClockLayout es el formato de hora del horario ("HH:mm:ss").
const ClockLayout = "15:04:05"

// Clock es una hora del día sin fecha.
type Clock struct {
	time.Duration // desde medianoche
}

// ParseClock parsea "HH:mm:ss".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return Clock{}, fmt.Errorf("hora inválida %q: %w", s, err)
	}
	return Clock{time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second}, nil
}

func (c Clock) String() string {
	d := c.Duration
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func (c Clock) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// On devuelve la hora aplicada a la fecha de day (misma zona).
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, day.Location()).Add(c.Duration)
}

// Subject es una materia. El nombre viene del server; Label cae en la tabla
// local cuando falta.
type Subject struct {
	ID   int    `json:"subjectId"`
	Name string `json:"name,omitempty"`
}

var subjectLabels = map[int]string{
	1: "Matematica", 2: "Lettere", 3: "Informatica", 4: "TPSIT", 5: "Inglese",
	6: "Educazione fisica", 7: "Religione", 8: "Sistemi e Reti", 9: "G.P.O.I",
	10: "Tutor", 11: "Ricreazione", 12: "Informatica Lab", 13: "Sistemi e Reti Lab",
	14: "TPSIT Lab", 15: "G.P.O.I Lab", 16: "Automazione", 17: "CNC",
}

// Label es el nombre para mostrar; ids desconocidos son "Ricreazione".
func (s Subject) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if l, ok := subjectLabels[s.ID]; ok {
		return l
	}
	return subjectLabels[11]
}

// TimetableEntry es una franja del horario.
type TimetableEntry struct {
	ID        uuid.UUID    `json:"id"`
	WeekDay   time.Weekday `json:"-"`
	StartTime Clock        `json:"startTime"`
	EndTime   Clock        `json:"endTime"`
	Subjects  []Subject    `json:"subjects"`
	Teachers  []TeacherRef `json:"teachers,omitempty"`
}

// TeacherRef es el profesor asignado a una franja.
type TeacherRef struct {
	ID       uuid.UUID `json:"userId"`
	Name     string    `json:"firstName"`
	Surname  string    `json:"lastName"`
	Username string    `json:"username"`
}

type entryAlias TimetableEntry

// UnmarshalJSON decodifica weekDay como nombre en inglés ("Monday").
func (e *TimetableEntry) UnmarshalJSON(b []byte) error {
	var w struct {
		entryAlias
		WeekDay string `json:"weekDay"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	wd, err := ParseWeekday(w.WeekDay)
	if err != nil {
		return err
	}
	*e = TimetableEntry(w.entryAlias)
	e.WeekDay = wd
	return nil
}

// MarshalJSON emite weekDay con el nombre en inglés.
func (e TimetableEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		entryAlias
		WeekDay string `json:"weekDay"`
	}{entryAlias(e), e.WeekDay.String()})
}

// ParseWeekday parsea "Monday".."Sunday".
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("día inválido %q", s)
}

// Timetable es el horario de una clase.
type Timetable struct {
	Entries []TimetableEntry `json:"timetable"`
	Class   ClassGroup       `json:"class"`
}

// ForDay devuelve las franjas del día ordenadas por inicio (y fin descendente a igual inicio).
func (t *Timetable) ForDay(d time.Weekday) []TimetableEntry {
	var out []TimetableEntry
	for _, e := range t.Entries {
		if e.WeekDay == d {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return entryLess(out[i], out[j]) })
	return out
}

func entryLess(a, b TimetableEntry) bool {
	if a.StartTime == b.StartTime {
		return a.EndTime.Duration > b.EndTime.Duration
	}
	return a.StartTime.Duration < b.StartTime.Duration
}
