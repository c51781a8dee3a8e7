package notification

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone database for minimal containers

	"github.com/stanstork/waterwatch-api/internal/models"
)

const smsTimeLayout = "02 Jan 2006, 03:04 PM"

// Formatter renders SMS bodies with timestamps in a fixed local zone.
type Formatter struct {
	loc *time.Location
}

func NewFormatter(timezone string) (*Formatter, error) {
	if timezone == "" {
		return &Formatter{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Formatter{loc: loc}, nil
}

func (f *Formatter) LocalTime(t time.Time) string {
	return t.In(f.loc).Format(smsTimeLayout)
}

// MediumMessage goes to leaders only.
func (f *Formatter) MediumMessage(wt models.WaterTest) string {
	return f.render("Water Quality Alert: MEDIUM risk", wt,
		"Please review the site and schedule a follow-up test.")
}

// UrgentMessage goes to everyone with a phone number.
func (f *Formatter) UrgentMessage(wt models.WaterTest) string {
	heading := "URGENT: HIGH risk water quality"
	if wt.Quality == models.QualityDisease {
		heading = "URGENT: Disease detected in water"
	}
	return f.render(heading, wt,
		"Do not use this water for drinking or cooking until further notice.")
}

func (f *Formatter) render(heading string, wt models.WaterTest, advice string) string {
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Waterbody: %s\n", wt.WaterbodyName)
	fmt.Fprintf(&b, "Location: %s\n", wt.Location)
	fmt.Fprintf(&b, "Tested: %s\n", f.LocalTime(wt.DateTime))
	b.WriteString(advice)
	return b.String()
}
