// Package config lets flags also be set from an HCL config file. A flag given on the
// command line always wins over the config file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/hashicorp/hcl"
	"github.com/hashicorp/hcl/hcl/scanner"
	"github.com/hashicorp/hcl/hcl/token"
	"github.com/spf13/pflag"
)

type By int

const (
	ByDefault By = iota
	ByFlag
	ByConfig
)

func (by By) String() string {
	switch by {
	case ByDefault:
		return "default"
	case ByFlag:
		return "flag"
	case ByConfig:
		return "config"
	}
	return fmt.Sprintf("by(%d)", int(by))
}

type Var struct {
	flag     *pflag.Flag
	by       By
	noConfig bool
}

func (v *Var) Name() string {
	return v.flag.Name
}

func (v *Var) By() By {
	return v.by
}

func (v *Var) Value() string {
	return v.flag.Value.String()
}

func (v *Var) Usage() string {
	return v.flag.Usage
}

// NoConfig prevents the variable from being set in a config file.
func (v *Var) NoConfig() *Var {
	v.noConfig = true
	return v
}

type Config struct {
	fs   *pflag.FlagSet
	vars map[string]*Var
}

func NewConfig(fs *pflag.FlagSet) *Config {
	return &Config{
		fs:   fs,
		vars: map[string]*Var{},
	}
}

// Var makes the flag name a config variable.
func (c *Config) Var(name string) *Var {
	if _, ok := c.vars[name]; ok {
		panic(fmt.Sprintf("config: variable redefined: %s", name))
	}
	flg := c.fs.Lookup(name)
	if flg == nil {
		panic(fmt.Sprintf("config: no such flag: %s", name))
	}

	v := &Var{flag: flg}
	c.vars[name] = v
	return v
}

func (c *Config) Lookup(name string) (*Var, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Load notes which variables were set on the command line, and then sets the rest from
// file. It is not an error for file to not exist if required is false.
func (c *Config) Load(file string, required bool) error {
	c.fs.VisitAll(
		func(flg *pflag.Flag) {
			if v, ok := c.vars[flg.Name]; ok && flg.Changed {
				v.by = ByFlag
			}
		})

	if file == "" {
		return nil
	}
	f, err := os.Open(file)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	err = c.load(f)
	if err != nil {
		return fmt.Errorf("%s: %s", file, err)
	}
	return nil
}

func (c *Config) load(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var cfg map[string]interface{}
	err = hcl.Decode(&cfg, string(b))
	if err != nil {
		return err
	}
	err = checkMissingValue(b)
	if err != nil {
		return err
	}

	for name, val := range cfg {
		v, ok := c.vars[name]
		if !ok {
			return fmt.Errorf("%s is not a config variable", name)
		}
		if v.noConfig {
			return fmt.Errorf("%s can't be set in config file", name)
		}

		if v.by == ByDefault {
			err := v.flag.Value.Set(fmt.Sprintf("%v", val))
			if err != nil {
				return fmt.Errorf("%s: %s", name, err)
			}
			v.by = ByConfig
		}
	}

	return nil
}

// checkMissingValue rejects an assignment with no value at the end of src; the parser drops
// it without an error.
func checkMissingValue(src []byte) error {
	var key, last token.Token
	sc := scanner.New(src)
	for {
		tok := sc.Scan()
		if tok.Type == token.EOF {
			break
		} else if tok.Type == token.COMMENT {
			continue
		}
		if tok.Type == token.ASSIGN {
			key = last
		}
		last = tok
	}

	if last.Type == token.ASSIGN {
		return fmt.Errorf("%s: missing value", key.Text)
	}
	return nil
}

// Vars returns the config variables sorted by name.
func (c *Config) Vars() []*Var {
	vars := make([]*Var, 0, len(c.vars))
	for _, v := range c.vars {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name() < vars[j].Name() })
	return vars
}
