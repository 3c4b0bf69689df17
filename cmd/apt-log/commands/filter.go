package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

// FilterOptions holds the event selection flags shared by view, export and
// filter. Empty fields match everything.
type FilterOptions struct {
	ConnID    string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string

	// Kinds is a comma-separated list of APT mnemonics, e.g.
	// "MOT_MOVE_COMPLETED,MOT_MOVE_STOPPED". The MGMSG_ prefix is optional.
	Kinds string

	// Channel is a channel id; empty or "0" matches all.
	Channel string
}

// BuildFilter converts flag values into a log.Filter.
func BuildFilter(opts FilterOptions) (log.Filter, error) {
	filter := log.Filter{ConnectionID: opts.ConnID}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if opts.Layer != "" {
		l, err := parseLayer(opts.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}

	if opts.Direction != "" {
		d, err := parseDirection(opts.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}

	if opts.Category != "" {
		c, err := parseCategory(opts.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}

	if opts.Kinds != "" {
		kinds, err := parseKinds(opts.Kinds)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Kinds = kinds
	}

	if opts.Channel != "" {
		ch, err := strconv.ParseUint(opts.Channel, 10, 16)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid channel: %s", opts.Channel)
		}
		filter.Channel = uint16(ch)
	}

	return filter, nil
}

// parseKinds parses a comma-separated list of kind names or hex ids.
func parseKinds(s string) ([]wire.Kind, error) {
	var kinds []wire.Kind
	for _, name := range strings.Split(s, ",") {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if k, ok := wire.KindByName(name); ok {
			kinds = append(kinds, k)
			continue
		}
		if hexID, ok := strings.CutPrefix(name, "0X"); ok {
			if id, err := strconv.ParseUint(hexID, 16, 16); err == nil {
				kinds = append(kinds, wire.Kind(id))
				continue
			}
		}
		return nil, fmt.Errorf("unknown kind: %s", name)
	}
	return kinds, nil
}

// RunFilter filters the log file and writes matching events to a new file.
func RunFilter(path, output string, opts FilterOptions, w io.Writer) error {
	filter, err := BuildFilter(opts)
	if err != nil {
		return err
	}

	// Open input
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	// Create file logger to write filtered events
	logger, err := log.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		logger.Log(event)
		count++
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, output)
	return nil
}
