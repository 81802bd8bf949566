package schedcore

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hollowfield-labs/schedcore/schederr"
)

// Load parses a schedule file previously written by Emit, validating the
// structural invariants spec §4.8 requires: every tag is known, every
// LCBN tree path's parent appears earlier in the file (well-formed
// tree). A file with no records after its header loads as an empty log.
// Malformed input is
// a fatal initialisation error (schederr.ConfigError wrapping
// ErrMalformedLog), never a partial/best-effort load.
func Load(path string) (*ScheduleLog, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, schederr.NewConfigError("load", schederr.ErrScheduleMissing)
		}
		return nil, schederr.NewConfigError("load", err)
	}
	defer f.Close()

	seenPaths := map[string]bool{"root": true}
	var records []Record

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue // header / comment line, informational only
		}

		r, path, err := parseRecordLine(line)
		if err != nil {
			return nil, schederr.NewConfigError("load", fmt.Errorf("line %d: %w: %w", lineNo, schederr.ErrMalformedLog, err))
		}

		if path != "" {
			if path != "root" {
				parent, _ := Path(nil), false
				if p, perr := ParsePath(path); perr == nil {
					if pp, ok := p.Parent(); ok {
						parent = pp
					}
				}
				if !seenPaths[pathString(parent)] {
					return nil, schederr.NewConfigError("load",
						fmt.Errorf("line %d: %w: lcbn %s has no earlier parent record", lineNo, schederr.ErrMalformedLog, path))
				}
			}
			seenPaths[path] = true
		}

		r.Seq = uint64(len(records))
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, schederr.NewConfigError("load", err)
	}

	return NewScheduleLogFromRecords(records), nil
}

func parseRecordLine(line string) (Record, string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Record{}, "", fmt.Errorf("empty record")
	}

	tag, ok := ParseTag(fields[0])
	if !ok {
		return Record{}, "", fmt.Errorf("unknown tag %q", fields[0])
	}

	r := Record{Tag: tag, Outputs: map[string]string{}}
	pathStr := ""
	for _, kv := range fields[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return Record{}, "", fmt.Errorf("malformed key=value %q", kv)
		}
		switch k {
		case "kind":
			r.LCBN.Kind = ParseKind(v)
		case "path":
			pathStr = v
			if v != "-" {
				p, err := ParsePath(v)
				if err != nil {
					return Record{}, "", err
				}
				r.LCBN.Path = p
			}
		case "exec":
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return Record{}, "", fmt.Errorf("malformed exec index %q: %w", v, err)
			}
			r.LCBN.ExecIndex = n
		default:
			r.Outputs[k] = v
		}
	}

	if pathStr == "-" || pathStr == "" {
		return r, "", nil
	}
	return r, pathStr, nil
}
