// Package datetext turns user-typed dates ("2026-11-02 15:00", "tomorrow at
// 3pm") into times.
package datetext

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/canvass"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Parse reads text as an exact timestamp first, then as an English phrase
// relative to base. Exact layouts without a zone use base's location.
func Parse(text string, base time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, &canvass.ValidationError{Field: "Date", Message: "required"}
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, text, base.Location()); err == nil {
			return t, nil
		}
	}

	r, err := parser.Parse(text, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, &canvass.ValidationError{Field: "Date", Message: fmt.Sprintf("could not understand %q", text)}
	}
	return r.Time, nil
}
