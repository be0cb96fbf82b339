package netlist

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/edp1096/toy-pdd/pkg/device"
)

// Deck is a parsed device deck.
type Deck struct {
	Title     string
	Models    map[string]device.ModelParam // .material cards
	Tables    map[string]string            // material name -> absorption table file
	Junctions []*JunctionCard
	Settings  map[string]any // option keys set by dot commands
	Light     *LightCard
	BaseDir   string // resolves relative table paths
}

type JunctionCard struct {
	Name   string
	Params map[string]string
	Layers []LayerCard
}

type LayerCard struct {
	Name     string
	Role     string
	Width    float64 // m
	Material string
	Na, Nd   float64 // m^-3
}

// LightCard is a .light source over Start..Stop with Points samples.
type LightCard struct {
	Type   string // blackbody, flat
	Params map[string]float64
	Start  float64
	Stop   float64
	Points int
}

var unitMap = map[string]float64{
	"T":   1e12,  // tera
	"G":   1e9,   // giga
	"meg": 1e6,   // mega
	"K":   1e3,   // kilo
	"k":   1e3,   // kilo
	"M":   1e-3,  // milli
	"m":   1e-3,  // milli
	"u":   1e-6,  // micro
	"n":   1e-9,  // nano
	"p":   1e-12, // pico
	"f":   1e-15, // femto
}

var (
	valuePattern = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)(meg|[TGMKkmunpf])?s?$`)
	spaces       = regexp.MustCompile(`\s+`)
)

// ParseFile reads a deck from disk. Absorption tables are resolved
// relative to the deck.
func ParseFile(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d.BaseDir = filepath.Dir(path)
	return d, nil
}

// Parse reads a deck. The first line is the title.
func Parse(input string) (*Deck, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	deck := &Deck{
		Models:   make(map[string]device.ModelParam),
		Tables:   make(map[string]string),
		Settings: make(map[string]any),
	}

	if scanner.Scan() {
		deck.Title = strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "*"))
	}

	var currentLine string
	lineNo, startNo := 1, 1
	flush := func() error {
		if currentLine == "" {
			return nil
		}
		err := parseLine(deck, currentLine)
		currentLine = ""
		if err != nil {
			return fmt.Errorf("line %d: %w", startNo, err)
		}
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Inline comment
		if idx := strings.Index(line, "*"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if len(line) == 0 {
			continue
		}

		if strings.HasPrefix(line, "+") {
			if currentLine == "" {
				return nil, fmt.Errorf("line %d: continuation without a card", lineNo)
			}
			currentLine += " " + strings.TrimSpace(line[1:])
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		currentLine, startNo = line, lineNo
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return deck, nil
}

func parseLine(deck *Deck, line string) error {
	line = spaces.ReplaceAllString(line, " ")

	if strings.HasPrefix(line, ".") {
		return parseDotOperator(deck, line)
	}

	switch strings.ToUpper(line[:1]) {
	case "L":
		return parseLayer(deck, line)
	}
	return fmt.Errorf("unsupported card: %s", line)
}

// Parse .material, .junction, .iv, .internal, .qe, .light, .options
func parseDotOperator(deck *Deck, line string) error {
	fields := strings.Fields(line)

	switch strings.ToLower(fields[0]) {
	case ".material":
		return parseMaterial(deck, fields[1:])

	case ".junction":
		if len(fields) < 2 {
			return fmt.Errorf("junction needs a name")
		}
		card := &JunctionCard{Name: fields[1], Params: make(map[string]string)}
		for _, pair := range fields[2:] {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("junction %s: expected key=value, got %q", card.Name, pair)
			}
			card.Params[strings.ToLower(key)] = value
		}
		deck.Junctions = append(deck.Junctions, card)

	case ".iv":
		values, flags, err := parseSweep(fields[1:])
		if err != nil {
			return fmt.Errorf("invalid iv sweep: %v", err)
		}
		deck.Settings["voltages"] = values
		for _, flag := range flags {
			switch strings.ToLower(flag) {
			case "light":
				deck.Settings["light_iv"] = true
			case "mpp":
				deck.Settings["mpp"] = true
			default:
				return fmt.Errorf("unknown iv flag %q", flag)
			}
		}

	case ".internal":
		values, flags, err := parseSweep(fields[1:])
		if err != nil || len(flags) > 0 {
			return fmt.Errorf("invalid internal sweep: %s", line)
		}
		deck.Settings["internal_voltages"] = values

	case ".qe":
		values, flags, err := parseSweep(fields[1:])
		if err != nil || len(flags) > 0 {
			return fmt.Errorf("invalid qe sweep: %s", line)
		}
		deck.Settings["wavelength"] = values

	case ".light":
		return parseLight(deck, fields[1:])

	case ".options":
		for _, pair := range fields[1:] {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("expected key=value option, got %q", pair)
			}
			key = strings.ToLower(key)
			if strings.Contains(value, ",") {
				xs, err := parseList(value)
				if err != nil {
					return fmt.Errorf("option %s: %v", key, err)
				}
				deck.Settings[key] = xs
			} else if v, err := ParseValue(value); err == nil {
				deck.Settings[key] = v
			} else {
				deck.Settings[key] = value
			}
		}

	default:
		return fmt.Errorf("unsupported command: %s", fields[0])
	}

	return nil
}

// parseSweep reads "start stop points" followed by optional flags.
func parseSweep(fields []string) ([]float64, []string, error) {
	if len(fields) < 3 {
		return nil, nil, fmt.Errorf("need start, stop and points")
	}
	start, err := ParseValue(fields[0])
	if err != nil {
		return nil, nil, err
	}
	stop, err := ParseValue(fields[1])
	if err != nil {
		return nil, nil, err
	}
	points, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, nil, err
	}
	if points < 2 {
		return nil, nil, fmt.Errorf("need at least 2 points, got %d", points)
	}
	return floats.Span(make([]float64, points), start, stop), fields[3:], nil
}

func parseLight(deck *Deck, fields []string) error {
	if len(fields) < 1 {
		return fmt.Errorf("light needs a source type")
	}
	card := &LightCard{
		Type:   strings.ToLower(fields[0]),
		Params: make(map[string]float64),
		Start:  280e-9,
		Stop:   4000e-9,
		Points: 1000,
	}
	switch card.Type {
	case "blackbody":
		card.Params["t"] = 5778
		card.Params["power"] = 1000
	case "flat":
		card.Params["flux"] = 1e27
	default:
		return fmt.Errorf("unsupported light source: %s", fields[0])
	}

	for _, pair := range fields[1:] {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("light: expected key=value, got %q", pair)
		}
		v, err := ParseValue(value)
		if err != nil {
			return fmt.Errorf("light: invalid value %s: %v", pair, err)
		}
		switch key = strings.ToLower(key); key {
		case "start":
			card.Start = v
		case "stop":
			card.Stop = v
		case "points":
			card.Points = int(v)
		default:
			card.Params[key] = v
		}
	}
	deck.Light = card
	return nil
}

// .material NAME (key=value ...)
func parseMaterial(deck *Deck, fields []string) error {
	if len(fields) < 1 {
		return fmt.Errorf("insufficient material parameters")
	}

	name := fields[0]
	paramStr := strings.Join(fields[1:], " ")
	if strings.HasPrefix(name, "(") || strings.Contains(name, "=") {
		return fmt.Errorf("material needs a name")
	}
	if i := strings.Index(name, "("); i >= 0 {
		paramStr = name[i:] + " " + paramStr
		name = name[:i]
	}
	paramStr = strings.TrimSpace(paramStr)
	paramStr = strings.TrimPrefix(paramStr, "(")
	paramStr = strings.TrimSuffix(paramStr, ")")

	params := make(map[string]float64)
	for _, pair := range strings.Fields(paramStr) {
		parts := strings.Split(pair, "=")
		if len(parts) != 2 {
			return fmt.Errorf("material %s: expected key=value, got %q", name, pair)
		}

		paramName := strings.ToLower(strings.TrimSpace(parts[0]))
		if paramName == "alpha" {
			deck.Tables[name] = parts[1]
			continue
		}
		value, err := ParseValue(strings.TrimSpace(parts[1]))
		if err != nil {
			return fmt.Errorf("invalid parameter value %s: %v", pair, err)
		}
		params[paramName] = value
	}

	deck.Models[name] = device.ModelParam{
		Type:   "MATERIAL",
		Name:   name,
		Params: params,
	}
	return nil
}

// Lname role width=.. material=.. na=.. nd=..
func parseLayer(deck *Deck, line string) error {
	fields := strings.Fields(line)
	if len(deck.Junctions) == 0 {
		return fmt.Errorf("layer %s outside a junction", fields[0])
	}
	if len(fields) < 3 {
		return fmt.Errorf("invalid layer format: %s", line)
	}

	layer := LayerCard{Name: fields[0][1:], Role: fields[1], Width: -1}
	if layer.Name == "" {
		layer.Name = fields[0]
	}
	for _, pair := range fields[2:] {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("layer %s: expected key=value, got %q", layer.Name, pair)
		}
		key = strings.ToLower(key)
		if key == "material" {
			layer.Material = value
			continue
		}
		v, err := ParseValue(value)
		if err != nil {
			return fmt.Errorf("layer %s: invalid %s: %v", layer.Name, key, err)
		}
		switch key {
		case "width":
			layer.Width = v
		case "na":
			layer.Na = v
		case "nd":
			layer.Nd = v
		default:
			return fmt.Errorf("layer %s: unknown parameter %q", layer.Name, key)
		}
	}
	if layer.Width < 0 {
		return fmt.Errorf("layer %s: missing width", layer.Name)
	}
	if layer.Material == "" {
		return fmt.Errorf("layer %s: missing material", layer.Name)
	}

	j := deck.Junctions[len(deck.Junctions)-1]
	j.Layers = append(j.Layers, layer)
	return nil
}

// ParseValue - Parse value and factor. 30n -> 3e-8
func ParseValue(val string) (float64, error) {
	matches := valuePattern.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %s", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	// factor
	if multiplier, ok := unitMap[matches[2]]; ok {
		num *= multiplier
	}

	return num, nil
}

// parseList parses comma separated values such as "50n,200n".
func parseList(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		if f == "" {
			continue
		}
		v, err := ParseValue(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
