package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/domain"
	"github.com/dropDatabas3/voci/internal/session"
)

func (cl *cli) jsonOut() bool { return strings.EqualFold(cl.out, "json") }

func (cl *cli) printJSON(v any) error {
	enc := json.NewEncoder(cl.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe devuelve el texto para el usuario de un error de comando.
func describe(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Notification().String()
	}
	return err.Error()
}

// flushNotifications vuelca a stderr los toasts y alertas acumulados.
func (cl *cli) flushNotifications() {
	for {
		a, ok := cl.c.Center.NextAlert()
		if !ok {
			break
		}
		fmt.Fprintf(cl.stderr, "[!] %s\n", a.Notification.String())
		if a.ActionURL != "" {
			fmt.Fprintf(cl.stderr, "    %s: %s\n", a.ActionTitle, a.ActionURL)
		}
	}
	for _, n := range cl.c.Center.Drain() {
		fmt.Fprintf(cl.stderr, "[%s] %s\n", n.Severity, n.String())
	}
}

func (cl *cli) writeMetrics() {
	if cl.c.Registry == nil {
		return
	}
	families, err := cl.c.Registry.Gather()
	if err != nil {
		fmt.Fprintf(cl.stderr, "metriche: %v\n", err)
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(cl.stderr, mf); err != nil {
			return
		}
	}
}

func (cl *cli) printState(st session.State) error {
	if cl.jsonOut() {
		return cl.printJSON(st)
	}
	switch {
	case st.Identity == nil:
		fmt.Fprintln(cl.stdout, "non autenticato")
	case st.IsAuthenticated:
		fmt.Fprintf(cl.stdout, "autenticato come %s (%s, %s)\n",
			st.Identity.Username, st.Identity.DisplayName(), st.Identity.Role().Label())
	default:
		fmt.Fprintf(cl.stdout, "sessione non valida per %s\n", st.Identity.Username)
	}
	return nil
}

func (cl *cli) printIdentities(ids []*domain.Identity) error {
	if cl.jsonOut() {
		return cl.printJSON(ids)
	}
	tw := tabwriter.NewWriter(cl.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRUOLO\tUSERNAME\tNOME")
	for _, i := range ids {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", i.ID, i.Role().Label(), i.Username, i.DisplayName())
	}
	return tw.Flush()
}

var weekDays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday,
}

var dayLabels = map[time.Weekday]string{
	time.Monday: "Lunedì", time.Tuesday: "Martedì", time.Wednesday: "Mercoledì",
	time.Thursday: "Giovedì", time.Friday: "Venerdì", time.Saturday: "Sabato",
}

func (cl *cli) printTimetable(t *domain.Timetable) error {
	if cl.jsonOut() {
		return cl.printJSON(t)
	}
	if t.Class.Name != "" {
		fmt.Fprintf(cl.stdout, "Classe %s\n", t.Class.Name)
	}
	for _, d := range weekDays {
		entries := t.ForDay(d)
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintln(cl.stdout, dayLabels[d])
		for _, e := range entries {
			fmt.Fprintf(cl.stdout, "  %s-%s  %s\n", e.StartTime, e.EndTime, subjects(e.Subjects))
		}
	}
	return nil
}

func subjects(ss []domain.Subject) string {
	labels := make([]string, 0, len(ss))
	for _, s := range ss {
		labels = append(labels, s.Label())
	}
	return strings.Join(labels, " / ")
}

func writeKV(w io.Writer, pairs ...string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(tw, "%s\t%s\n", pairs[i], pairs[i+1])
	}
	_ = tw.Flush()
}
