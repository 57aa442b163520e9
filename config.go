// RTLWMBUS - An rtl-sdr receiver for Wireless M-Bus meters in the 868MHz SRD band.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// LoadConfig applies values from a yaml file of flag names to values. Flags
// already set on the command line or from the environment are left alone.
func LoadConfig(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer f.Close()

	return errors.Wrapf(applyConfig(flag.CommandLine, f), "config %s", filename)
}

func applyConfig(fs *flag.FlagSet, r io.Reader) error {
	values := map[string]interface{}{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return errors.Wrap(err, "decode")
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	for name, v := range values {
		if fs.Lookup(name) == nil {
			return errors.Errorf("unknown flag: %q", name)
		}
		if set[name] {
			log.Debugf("Flag %q overrides config value %v", name, v)
			continue
		}

		value, err := configValue(v)
		if err != nil {
			return errors.Wrapf(err, "flag %q", name)
		}
		if err := fs.Set(name, value); err != nil {
			return errors.Wrapf(err, "flag %q", name)
		}
	}

	return nil
}

// Scalars are taken as written, sequences become comma-separated lists.
func configValue(v interface{}) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", errors.New("empty value")
	case []interface{}:
		var items []string
		for _, item := range v {
			s, err := configValue(item)
			if err != nil {
				return "", err
			}
			items = append(items, s)
		}
		return strings.Join(items, ","), nil
	case map[string]interface{}:
		return "", errors.New("nested mappings are not flag values")
	default:
		return fmt.Sprint(v), nil
	}
}
