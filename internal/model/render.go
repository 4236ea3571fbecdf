package model

import (
	"fmt"
	"sort"
)

// -------------------------------------------------------------------------
// Channel Colors
// -------------------------------------------------------------------------

// Chnl2Color maps a channel number to a fill color. 2.4 GHz channels ramp
// red through yellow to white as the channel rises; 5 GHz channels ramp
// blue through cyan to white. Channel 36 is collapsed to 37 so the low end
// of the 5 GHz ramp is not degenerate.
func Chnl2Color(chnl int) string {
	var r, g, b int
	if chnl < 15 {
		n := 512 - (511*chnl)/14
		switch {
		case n < 128:
			r, g, b = 128+n, 0, 0
		case n < 384:
			r, g, b = 255, n-127, 0
		default:
			r, g, b = 255, 255, n-382
		}
	} else {
		if chnl == 36 {
			chnl = 37
		}
		n := 512 - (511*(chnl-36))/(165-36)
		switch {
		case n < 128:
			b, g, r = 128+n, 0, 0
		case n < 384:
			b, g, r = 255, n-127, 0
		default:
			b, g, r = 255, 255, n-382
		}
	}
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// Named colors used by the render rules.
const (
	colorBlack   = "black"
	colorGray    = "gray"
	colorGreen   = "green"
	colorMagenta = "magenta"
)

// linkDownReason is the disabled reason that marks a link-down radio.
const linkDownReason = "(Link-down)"

// Label placement relative to the circle.
const (
	TextUp   = "up"
	TextDown = "down"
)

// -------------------------------------------------------------------------
// RenderCircle — what the rendering collaborator draws
// -------------------------------------------------------------------------

// RenderCircle is one drawable radio circle. The slice returned by
// RenderViews is already draw-ordered: larger coverage first so small
// circles are never hidden.
type RenderCircle struct {
	AP     string `json:"ap"`
	Radio  string `json:"radio"`
	Center Point  `json:"center"`
	Radius int    `json:"radius"`

	// Fill is the circle fill color; empty for outline-only rendering.
	Fill string `json:"fill,omitempty"`

	// Stipple requests a stippled fill (non-running selection states).
	Stipple bool `json:"stipple,omitempty"`

	// Outline is the outline color; empty when the circle is filled.
	Outline string `json:"outline,omitempty"`

	// Dashed requests a dashed outline (session lost).
	Dashed bool `json:"dashed,omitempty"`

	// Text is the multi-line radio label and TextPos its side.
	Text      string `json:"text"`
	TextColor string `json:"text_color"`
	TextPos   string `json:"text_pos"`

	// Name is the AP label drawn at the center; set on one circle per AP.
	Name string `json:"name,omitempty"`
}

// RenderViews derives the drawable circles for the whole fleet from the
// given snapshots. Radios filtered out by tun.RadioDisplayed or whose mode
// does not participate in channel selection yield no circle.
func RenderViews(snapshots []APSnapshot, tun Tunables) []RenderCircle {
	// Larger fleet coverage first so big circles go to the back.
	ordered := make([]APSnapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return maxCoverage(ordered[i]) > maxCoverage(ordered[j])
	})

	var out []RenderCircle
	for _, ap := range ordered {
		out = append(out, apCircles(ap, tun)...)
	}
	return out
}

// maxCoverage returns the largest radio coverage of an AP.
func maxCoverage(ap APSnapshot) int {
	largest := 0
	for _, r := range ap.Radios {
		if r.Coverage > largest {
			largest = r.Coverage
		}
	}
	return largest
}

// apCircles renders one AP: the larger radio first, the AP name label on
// the last (smallest) drawn circle so it stays visible.
func apCircles(ap APSnapshot, tun Tunables) []RenderCircle {
	radios := make([]RadioSnapshot, 0, len(ap.Radios))
	for _, r := range ap.Radios {
		if tun.RadioDisplayed != DisplayAll && tun.RadioDisplayed != string(r.Name[len(r.Name)-1]) {
			continue
		}
		if !SupportsAcsp(r.Mode) {
			continue
		}
		radios = append(radios, r)
	}
	sort.SliceStable(radios, func(i, j int) bool { return radios[i].Coverage > radios[j].Coverage })

	out := make([]RenderCircle, 0, len(radios))
	for i, r := range radios {
		c := radioCircle(ap, r, tun)
		if i == len(radios)-1 {
			c.Name = ap.Name + "/" + ap.MAC
		}
		out = append(out, c)
	}
	return out
}

// radioCircle applies the color and style rules for one radio.
func radioCircle(ap APSnapshot, r RadioSnapshot, tun Tunables) RenderCircle {
	fill := Chnl2Color(r.Channel)
	stipple := false
	switch {
	case r.ChannelState == ChannelDisable:
		if r.DisabledReason == linkDownReason {
			fill = colorGray
		}
	case !r.ChannelState.Running():
		fill = colorGray
		stipple = true
	}

	textColor := colorBlack
	switch {
	case r.ChannelState == ChannelDisable:
		textColor = colorMagenta
	case !r.ChannelState.Running():
		textColor = colorGreen
	}

	text := fmt.Sprintf("%s/%s/%s\n%s/%d/%s/%d",
		r.Name, r.Mode, r.Phymode,
		r.ChannelState, r.Channel, r.PowerState, r.TxPower)
	if tun.RunTimestamp && r.ChannelState.Running() && !r.RunSince.IsZero() {
		text += "\n(" + r.RunSince.Format(RunTimestampFormat) + ")"
	}

	textPos := TextUp
	if r.Name == IfnameWifi1 {
		textPos = TextDown
	}

	c := RenderCircle{
		AP:        ap.IP,
		Radio:     r.Name,
		Center:    r.Center,
		Radius:    r.Coverage,
		Fill:      fill,
		Stipple:   stipple,
		Text:      text,
		TextColor: textColor,
		TextPos:   textPos,
	}

	// Outline-only when transparent rendering is on or the session is
	// lost; a lost session additionally dashes the outline and greys the
	// label.
	if tun.Transparent || !ap.Active {
		c.Fill = ""
		c.Stipple = false
		c.Outline = colorBlack
		if !ap.Active {
			c.Dashed = true
			c.TextColor = colorGray
		}
	}
	return c
}
