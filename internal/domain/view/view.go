// Package view enumerates the screens of the operator console.
package view

import (
	"fmt"
	"strings"
)

// View is a console screen.
type View int

const (
	Dashboard View = iota + 1
	CheckIn
	Inventory
)

// All lists every view in navigation order.
var All = []View{Dashboard, CheckIn, Inventory}

func (v View) String() string {
	switch v {
	case Dashboard:
		return "dashboard"
	case CheckIn:
		return "checkin"
	case Inventory:
		return "inventory"
	default:
		return fmt.Sprintf("View(%d)", int(v))
	}
}

// Parse maps a view name to its View.
func Parse(s string) (View, error) {
	for _, v := range All {
		if strings.EqualFold(s, v.String()) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown view %q", s)
}
