package poll

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cachalot1984/acspmon/internal/model"
)

// ErrParse indicates device output did not match the expected shape. The
// affected poll iteration is abandoned; no field is partially updated.
var ErrParse = errors.New("unexpected device output")

// Patterns extracted from `show interface <ifname>` output.
var (
	ptnMode    = regexp.MustCompile(`Mode=(.+?);`)
	ptnPhymode = regexp.MustCompile(`Phymode=(.+?);`)
	ptnNfloor  = regexp.MustCompile(`Noise floor=(.+?)dBm;`)

	// ptnReason captures a parenthesized disabled reason glued to a
	// state token, e.g. "Disable(Link-down)".
	ptnReason = regexp.MustCompile(`(\(.+?\))`)

	// ptnNbrRSSI captures the whitespace-delimited negative RSSI column
	// of a neighbor row.
	ptnNbrRSSI = regexp.MustCompile(`[ \t]+(-[0-9]+)[ \t]+`)
)

// FillWhite replaces the whitespace between each start..end marker pair in
// text with fill, so multi-word tokens survive field splitting. Nested
// marker pairs are not supported.
func FillWhite(text, start, end string, fill byte) string {
	var b strings.Builder
	rest := text

	for {
		s := strings.Index(rest, start)
		if s < 0 {
			break
		}
		e := strings.Index(rest[s+len(start):], end)
		if e < 0 {
			break
		}
		e += s + len(start)

		b.WriteString(rest[:s])
		token := rest[s : e+len(end)]
		token = strings.ReplaceAll(token, " ", string(fill))
		token = strings.ReplaceAll(token, "\t", string(fill))
		b.WriteString(token)
		rest = rest[e+len(end):]
	}

	b.WriteString(rest)
	return b.String()
}

// -------------------------------------------------------------------------
// show interface <ifname>
// -------------------------------------------------------------------------

// InterfaceStats are the per-poll fields of `show interface <ifname>`.
type InterfaceStats struct {
	Mode    string
	Phymode string
	Nfloor  int
}

// ParseInterface extracts mode, PHY mode, and noise floor from the raw
// `show interface <ifname>` output.
func ParseInterface(out string) (InterfaceStats, error) {
	var st InterfaceStats

	m := ptnMode.FindStringSubmatch(out)
	if m == nil {
		return st, fmt.Errorf("parse interface mode: %w", ErrParse)
	}
	st.Mode = m[1]

	m = ptnPhymode.FindStringSubmatch(out)
	if m == nil {
		return st, fmt.Errorf("parse interface phymode: %w", ErrParse)
	}
	st.Phymode = m[1]

	m = ptnNfloor.FindStringSubmatch(out)
	if m == nil {
		return st, fmt.Errorf("parse interface noise floor: %w", ErrParse)
	}
	nfloor, err := strconv.Atoi(strings.TrimSpace(m[1]))
	if err != nil {
		return st, fmt.Errorf("parse interface noise floor %q: %w", m[1], ErrParse)
	}
	st.Nfloor = nfloor

	return st, nil
}

// -------------------------------------------------------------------------
// show interface | in <ifname>  /  | in mgt0  /  show version | in Platform
// -------------------------------------------------------------------------

// ParseRadioLine extracts the hardware address and link state from one
// filtered `show interface | in wifiN` line.
func ParseRadioLine(line string) (mac, state string, err error) {
	cols := strings.Fields(line)
	if len(cols) < 4 {
		return "", "", fmt.Errorf("parse radio line %q: %w", line, ErrParse)
	}
	return cols[1], cols[3], nil
}

// ParseMgt0Line extracts the management MAC and hive identifier from the
// filtered `show interface | in mgt0` line.
func ParseMgt0Line(line string) (mac, hive string, err error) {
	cols := strings.Fields(line)
	if len(cols) < 8 {
		return "", "", fmt.Errorf("parse mgt0 line %q: %w", line, ErrParse)
	}
	return cols[1], cols[7], nil
}

// ParsePlatformLine extracts the platform name from the filtered
// `show version | in Platform` line.
func ParsePlatformLine(line string) (string, error) {
	cols := strings.Fields(line)
	if len(cols) < 2 {
		return "", fmt.Errorf("parse platform line %q: %w", line, ErrParse)
	}
	return cols[1], nil
}

// -------------------------------------------------------------------------
// show acsp
// -------------------------------------------------------------------------

// AcspRow is one radio's row of the `show acsp` table.
type AcspRow struct {
	ChannelState          model.ChannelState
	ChannelDisabledReason string
	Channel               int
	Width                 int
	PowerState            string
	PowerDisabledReason   string
	TxPower               int
}

// acspRowIndex returns the zero-indexed row of a radio in the stripped
// `show acsp` output: wifi0 sits on line 3, wifi1 on line 4.
func acspRowIndex(ifname string) int {
	if ifname == model.IfnameWifi1 {
		return 4
	}
	return 3
}

// ParseAcspTable extracts one radio's row from the stripped `show acsp`
// output lines. The width column is optional and detected by the word
// "width" in the header line.
func ParseAcspTable(lines []string, ifname string) (AcspRow, error) {
	var row AcspRow

	idx := acspRowIndex(ifname)
	if len(lines) <= idx || len(lines) < 2 {
		return row, fmt.Errorf("parse acsp table for %s: %d lines: %w", ifname, len(lines), ErrParse)
	}

	// Glue the multi-word tokens together before splitting on whitespace.
	// State tokens take an underscore so they match the canonical state
	// spellings; parenthesized reasons keep the dash fill.
	line := lines[idx]
	line = FillWhite(line, "(", ")", '-')
	line = FillWhite(line, "Channel", "Req", '_')
	line = FillWhite(line, "DFS", "CAC", '_')
	line = FillWhite(line, "Sched", "Waiting", '_')

	cols := strings.Fields(line)
	if len(cols) < 4 {
		return row, fmt.Errorf("parse acsp row %q: %w", lines[idx], ErrParse)
	}

	state, reason := splitReason(cols[1])
	row.ChannelState = model.ChannelState(state)
	row.ChannelDisabledReason = reason
	if row.ChannelState == "" {
		return row, fmt.Errorf("parse acsp channel state from %q: %w", lines[idx], ErrParse)
	}

	chnl, err := strconv.Atoi(cols[2])
	if err != nil {
		return row, fmt.Errorf("parse acsp channel %q: %w", cols[2], ErrParse)
	}
	row.Channel = chnl

	pwrIdx := 3
	if strings.Contains(lines[1], "width") {
		width, wErr := strconv.Atoi(cols[3])
		if wErr != nil {
			return row, fmt.Errorf("parse acsp width %q: %w", cols[3], ErrParse)
		}
		row.Width = width
		pwrIdx = 4
	}

	if len(cols) < pwrIdx+2 {
		return row, fmt.Errorf("parse acsp row %q: %w", lines[idx], ErrParse)
	}

	state, reason = splitReason(cols[pwrIdx])
	row.PowerState = state
	row.PowerDisabledReason = reason
	if row.PowerState == "" {
		return row, fmt.Errorf("parse acsp power state from %q: %w", lines[idx], ErrParse)
	}

	txpwr, err := strconv.Atoi(cols[pwrIdx+1])
	if err != nil {
		return row, fmt.Errorf("parse acsp tx power %q: %w", cols[pwrIdx+1], ErrParse)
	}
	row.TxPower = txpwr

	return row, nil
}

// splitReason separates a "(reason)" suffix from a state token.
func splitReason(token string) (state, reason string) {
	m := ptnReason.FindStringSubmatch(token)
	if m == nil {
		return token, ""
	}
	return ptnReason.ReplaceAllString(token, ""), m[1]
}

// -------------------------------------------------------------------------
// show acsp neighbor
// -------------------------------------------------------------------------

// NeighborObs aggregates the neighbor rows of one remote radio: mean RSSI
// and CRC error rate, summed station count and channel utilization.
type NeighborObs struct {
	RSSI     int
	StaCount int
	CRCErr   int
	TotalCU  int
	Rows     int
}

// ParseNeighborRows collects every `show acsp neighbor` line carrying the
// given hardware-address prefix (the radio MAC minus its final character,
// so all virtual APs of the radio match) and aggregates them. Rows == 0
// means the neighbor was not heard this poll.
//
// Counted from the right, the columns of a row are channel utilization,
// the glued <cu><crc> column, and station count.
func ParseNeighborRows(lines []string, macPrefix string) (NeighborObs, error) {
	var obs NeighborObs

	for _, line := range lines {
		if !strings.Contains(line, macPrefix) {
			continue
		}

		m := ptnNbrRSSI.FindStringSubmatch(line)
		cols := strings.Fields(line)
		if m == nil || len(cols) < 4 {
			return NeighborObs{}, fmt.Errorf("parse neighbor row %q: %w", line, ErrParse)
		}

		rssi, err := strconv.Atoi(m[1])
		if err != nil {
			return NeighborObs{}, fmt.Errorf("parse neighbor rssi %q: %w", m[1], ErrParse)
		}

		sta, err := strconv.Atoi(cols[len(cols)-2])
		if err != nil {
			return NeighborObs{}, fmt.Errorf("parse neighbor station count %q: %w", cols[len(cols)-2], ErrParse)
		}

		// The CRC error rate is glued onto the channel-utilization
		// column as its final digit; a short glued column means the
		// utilization lives one column further left.
		glued := cols[len(cols)-3]
		crc, err := strconv.Atoi(glued[len(glued)-1:])
		if err != nil {
			return NeighborObs{}, fmt.Errorf("parse neighbor crc %q: %w", glued, ErrParse)
		}

		var cuCol string
		if len(glued) > 3 {
			cuCol = glued[:3]
		} else {
			cuCol = cols[len(cols)-4]
		}
		cu, err := strconv.Atoi(cuCol)
		if err != nil {
			return NeighborObs{}, fmt.Errorf("parse neighbor channel utilization %q: %w", cuCol, ErrParse)
		}

		obs.RSSI += rssi
		obs.StaCount += sta
		obs.CRCErr += crc
		obs.TotalCU += cu
		obs.Rows++
	}

	if obs.Rows > 0 {
		obs.RSSI /= obs.Rows
		obs.CRCErr /= obs.Rows
	}
	return obs, nil
}
