package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newConfig(bv bool, i64v int64, sv string) (*Config, *bool, *int64, *string) {
	fs := pflag.NewFlagSet("test", pflag.PanicOnError)
	fs.String("good", "", "")
	b := fs.Bool("bool_var", bv, "")
	i64 := fs.Int64("int64_var", i64v, "")
	s := fs.String("string-var", sv, "")
	fs.Duration("timeout", time.Second, "")

	c := NewConfig(fs)
	c.Var("good")
	c.Var("bool_var")
	c.Var("int64_var")
	c.Var("string-var")
	c.Var("timeout").NoConfig()
	return c, b, i64, s
}

func TestLoadSimple(t *testing.T) {
	cases := []struct {
		bv, be     bool
		i64v, i64e int64
		sv, se     string
		fail       bool
		cfg        string
	}{
		{fail: true, cfg: `good`},
		{fail: true, cfg: `good=`},
		{fail: true, cfg: `good =`},
		{fail: true, cfg: `good = // comment`},
		{fail: true, cfg: `bool_var = true
good =`},
		{fail: true, cfg: `bad = 123`},
		{cfg: `good=123`},
		{cfg: `/* comment */ good // comment
= /* comment */

        123`},
		{fail: true, cfg: `1234`},
		{cfg: `"good" = 1234`},
		{cfg: `# comment
good = "abc"`},

		{bv: false, be: true, cfg: `bool_var = true`},
		{bv: true, be: false, cfg: `bool_var = false`},
		{fail: true, cfg: `bool_var = 1234`},
		{i64v: 1234, i64e: -5678, cfg: `int64_var = -5678`},
		{fail: true, cfg: `int64_var = "a string"`},
		{sv: "", se: "a string", cfg: `string-var = "a string"`},
		{fail: true, cfg: `timeout = "10s"`},
		{bv: true, be: false, i64v: 1, i64e: 2, sv: "x", se: "y", cfg: `
bool_var = false
int64_var = 2
string-var = "y"`},
	}

	for i, tc := range cases {
		c, b, i64, s := newConfig(tc.bv, tc.i64v, tc.sv)
		if *b != tc.bv || *i64 != tc.i64v || *s != tc.sv {
			t.Errorf("NewConfig(%d) defaults not correctly set", i)
		}
		err := c.load(strings.NewReader(tc.cfg))
		if tc.fail {
			if err == nil {
				t.Errorf("load(%q) did not fail", tc.cfg)
			}
		} else if err != nil {
			t.Errorf("load(%q) failed with %s", tc.cfg, err)
		} else if *b != tc.be || *i64 != tc.i64e || *s != tc.se {
			t.Errorf("load(%q): got %v, %d, %q want %v, %d, %q", tc.cfg, *b, *i64, *s, tc.be,
				tc.i64e, tc.se)
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.hcl")
	err := os.WriteFile(file, []byte(`
good = "from config"
int64_var = 99
string-var = "ignored"
`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	c, _, i64, s := newConfig(false, 1, "default")
	err = c.fs.Parse([]string{"--string-var", "from flag"})
	if err != nil {
		t.Fatal(err)
	}
	err = c.Load(file, true)
	if err != nil {
		t.Fatalf("Load(%s) failed with %s", file, err)
	}
	if *i64 != 99 || *s != "from flag" {
		t.Errorf("Load(%s): got %d, %q want 99, \"from flag\"", file, *i64, *s)
	}

	var got []string
	for _, v := range c.Vars() {
		got = append(got, v.Name()+"="+v.Value()+"("+v.By().String()+")")
	}
	want := "[bool_var=false(default) good=from config(config) int64_var=99(config) " +
		"string-var=from flag(flag) timeout=1s(default)]"
	if s := "[" + strings.Join(got, " ") + "]"; s != want {
		t.Errorf("Vars(): got %s want %s", s, want)
	}

	c, _, _, _ = newConfig(false, 1, "default")
	err = c.Load(filepath.Join(dir, "missing.hcl"), false)
	if err != nil {
		t.Errorf("Load(missing.hcl, false) failed with %s", err)
	}
	err = c.Load(filepath.Join(dir, "missing.hcl"), true)
	if err == nil {
		t.Error("Load(missing.hcl, true) did not fail")
	}
}
