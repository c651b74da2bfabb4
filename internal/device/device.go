// Package device holds the phone and tablet profiles a check can emulate.
//
// Profiles are chromedp device descriptors, so a profile can be handed
// straight to chromedp.Emulate. The names are normalized (lowercase, no
// spaces or punctuation) so "iPhone 12", "iphone-12" and "iphone12" all
// resolve to the same profile.
package device

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/device"
)

// ErrUnknownDevice is returned by Lookup for names with no built-in profile.
var ErrUnknownDevice = errors.New("unknown device")

// Profile is a named emulation target.
type Profile struct {
	// Key is the normalized lookup name.
	Key  string
	Info device.Info
}

var _ chromedp.Device = Profile{}

// Device implements chromedp.Device.
func (p Profile) Device() device.Info {
	return p.Info
}

// WithViewport returns a copy of the profile with its CSS viewport replaced.
// User agent, scale factor and touch/mobile flags are kept. Zero dimensions
// leave the profile unchanged.
func (p Profile) WithViewport(width, height int) Profile {
	if width <= 0 || height <= 0 {
		return p
	}
	p.Info.Width = int64(width)
	p.Info.Height = int64(height)
	p.Info.Landscape = width > height
	return p
}

// String renders the profile as "<name> (<w>x<h> @<scale>x)".
func (p Profile) String() string {
	return fmt.Sprintf("%s (%dx%d @%gx)", p.Info.Name, p.Info.Width, p.Info.Height, p.Info.Scale)
}

// builtin maps lookup keys to chromedp's device catalog.
var builtin = map[string]chromedp.Device{
	"iphone12":       device.IPhone12,
	"iphone12pro":    device.IPhone12Pro,
	"iphonese":       device.IPhoneSE,
	"iphone14promax": device.IPhone14ProMax,
	"pixel5":         device.Pixel5,
	"galaxys9":       device.GalaxyS9,
	"ipadmini":       device.IPadMini,
}

// Normalize turns a user supplied device name into a lookup key.
func Normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup resolves a device name to its profile.
func Lookup(name string) (Profile, error) {
	key := Normalize(name)
	d, ok := builtin[key]
	if !ok {
		return Profile{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownDevice, name, strings.Join(Names(), ", "))
	}
	return Profile{Key: key, Info: d.Device()}, nil
}

// Resolve looks up every name and applies the viewport override to each.
// Duplicate names collapse to one profile, keeping the first occurrence.
func Resolve(names []string, width, height int) ([]Profile, error) {
	seen := make(map[string]bool, len(names))
	profiles := make([]Profile, 0, len(names))
	for _, name := range names {
		p, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		if seen[p.Key] {
			continue
		}
		seen[p.Key] = true
		profiles = append(profiles, p.WithViewport(width, height))
	}
	return profiles, nil
}

// Names returns the sorted lookup keys of the built-in profiles.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for k := range builtin {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// All returns every built-in profile sorted by key.
func All() []Profile {
	names := Names()
	profiles := make([]Profile, 0, len(names))
	for _, k := range names {
		profiles = append(profiles, Profile{Key: k, Info: builtin[k].Device()})
	}
	return profiles
}
