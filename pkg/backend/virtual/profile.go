package virtual

import (
	_ "embed"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/archivist-descry/descry/pkg/sane"
)

//go:embed profiles/brother.toml
var brotherProfile []byte

// Profile describes a set of virtual devices.
type Profile struct {
	Version string          `toml:"version"`
	Devices []DeviceProfile `toml:"device"`
}

// DeviceProfile describes one virtual scanner.
type DeviceProfile struct {
	Name   string `toml:"name"`
	Vendor string `toml:"vendor"`
	Model  string `toml:"model"`
	Type   string `toml:"type"`

	// Pages is the number of generated pages per scan when PageFiles is empty.
	Pages      int      `toml:"pages"`
	PageFiles  []string `toml:"page_files"`
	PageWidth  int      `toml:"page_width"`
	PageHeight int      `toml:"page_height"`
	// FailAtPage makes the page sequence fail when page N (1-based) is due.
	FailAtPage int    `toml:"fail_at_page"`
	FailOpen   bool   `toml:"fail_open"`
	PageDelay  string `toml:"page_delay"`

	Parameters ParametersProfile `toml:"parameters"`
	Options    []OptionProfile   `toml:"option"`

	delay time.Duration
}

// ParametersProfile is the static frame description returned by the device.
type ParametersProfile struct {
	Format        string `toml:"format"`
	LastFrame     bool   `toml:"last_frame"`
	PixelsPerLine int    `toml:"pixels_per_line"`
	Lines         int    `toml:"lines"`
	Depth         int    `toml:"depth"`
	BytesPerLine  int    `toml:"bytes_per_line"`
}

// OptionProfile describes one option of a virtual device. ActiveWhen makes
// the option active only while every named option holds one of the listed
// values.
type OptionProfile struct {
	Name       string           `toml:"name"`
	Title      string           `toml:"title"`
	Desc       string           `toml:"desc"`
	Type       int              `toml:"type"`
	Unit       int              `toml:"unit"`
	Size       int              `toml:"size"`
	Cap        int              `toml:"cap"`
	Range      []float64        `toml:"range"`
	Values     []any            `toml:"values"`
	Value      any              `toml:"value"`
	ActiveWhen map[string][]any `toml:"active_when"`
}

// LoadProfile reads a TOML profile from path. An empty path selects the
// embedded Brother MFC-L2700DW profile.
func LoadProfile(path string) (*Profile, error) {
	if strings.TrimSpace(path) == "" {
		return ParseProfile(brotherProfile)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read virtual profile")
	}
	return ParseProfile(raw)
}

// ParseProfile decodes and checks a TOML profile.
func ParseProfile(raw []byte) (*Profile, error) {
	var p Profile
	if _, err := toml.Decode(string(raw), &p); err != nil {
		return nil, errors.Wrap(err, "decode virtual profile")
	}
	seen := make(map[string]struct{}, len(p.Devices))
	for i := range p.Devices {
		dev := &p.Devices[i]
		if strings.TrimSpace(dev.Name) == "" {
			return nil, errors.Errorf("virtual profile: device %d has no name", i)
		}
		if _, dup := seen[dev.Name]; dup {
			return nil, errors.Errorf("virtual profile: duplicate device %q", dev.Name)
		}
		seen[dev.Name] = struct{}{}
		if dev.PageDelay != "" {
			d, err := time.ParseDuration(dev.PageDelay)
			if err != nil {
				return nil, errors.Wrapf(err, "virtual profile: device %q page_delay", dev.Name)
			}
			dev.delay = d
		}
		for j, opt := range dev.Options {
			if len(opt.Range) != 0 && len(opt.Range) != 3 {
				return nil, errors.Errorf("virtual profile: device %q option %d range needs min, max, step", dev.Name, j)
			}
			if len(opt.Range) == 3 && len(opt.Values) > 0 {
				return nil, errors.Errorf("virtual profile: device %q option %d has both range and values", dev.Name, j)
			}
		}
	}
	if p.Version == "" {
		p.Version = "1.0.0"
	}
	return &p, nil
}

func (o OptionProfile) constraint() any {
	switch {
	case len(o.Range) == 3:
		return sane.Range{o.Range[0], o.Range[1], o.Range[2]}
	case o.Values != nil:
		out := make([]any, len(o.Values))
		copy(out, o.Values)
		return out
	default:
		return nil
	}
}
