// Package config holds the command line and mount options.
package config

import (
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
)

// Meta describes the binary.
type Meta struct {
	ID      string
	Name    string
	Desc    string
	Version string
}

type Cli struct {
	Version kong.VersionFlag

	LogLevel   string `kong:"name=log-level,env=LOG_LEVEL,default=info,help='Set log level.'"`
	LogJSON    bool   `kong:"name=log-json,env=LOG_JSON,default=false,help='Enable JSON logging output.'"`
	LogCaller  bool   `kong:"name=log-caller,env=LOG_CALLER,default=false,help='Add file:line of the caller to log output.'"`
	LogNoColor bool   `kong:"name=log-nocolor,env=LOG_NOCOLOR,default=false,help='Disable colorized output.'"`

	CacheSize  int  `kong:"name=cache-size,env=ZIPROFS_CACHE_SIZE,default=1000,help='Number of archives kept open.'"`
	NoZipCheck bool `kong:"name=no-zip-check,env=ZIPROFS_NO_ZIP_CHECK,default=false,help='Treat every .zip path as an archive without checking its contents.'"`
	Foreground bool `kong:"name=foreground,short=f,default=false,help='Stay in the foreground instead of detaching.'"`
	AllowOther bool `kong:"name=allow-other,default=false,help='Allow access by users other than the one mounting.'"`
	Debug      bool `kong:"name=debug,short=d,default=false,help='Log every FUSE request; implies --log-level=debug.'"`
	Async      bool `kong:"name=async,default=false,help='Let the kernel issue reads asynchronously.'"`
	Rewind     bool `kong:"name=rewind,default=false,help='Reopen compressed entries to serve reads behind the current position.'"`

	Options []string `kong:"name=options,short=o,sep=',',placeholder='OPT,...',help='Mount options: foreground, debug, allowother, nozipcheck, async, rewind, cachesize=N.'"`

	Root       string `kong:"arg,required,name=root,type=existingdir,help='Directory to serve.'"`
	Mountpoint string `kong:"arg,required,name=mountpoint,type=existingdir,help='Where to mount it.'"`
}

// ApplyOptions folds -o style mount options into the flags.
func (c *Cli) ApplyOptions() error {
	for _, opt := range c.Options {
		name, value, hasValue := strings.Cut(strings.TrimSpace(opt), "=")
		switch name {
		case "":
		case "foreground":
			c.Foreground = true
		case "debug":
			c.Debug = true
		case "allowother", "allow_other":
			c.AllowOther = true
		case "nozipcheck":
			c.NoZipCheck = true
		case "async":
			c.Async = true
		case "rewind":
			c.Rewind = true
		case "cachesize":
			if !hasValue {
				return errors.New("cachesize needs a value")
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return errors.Wrapf(err, "bad cachesize %q", value)
			}
			c.CacheSize = n
		default:
			return errors.Errorf("unknown mount option %q", name)
		}
	}
	return nil
}

// Validate is called by kong after parsing.
func (c *Cli) Validate() error {
	if err := c.ApplyOptions(); err != nil {
		return err
	}
	if c.CacheSize < 1 {
		return errors.Errorf("bad cache size %d", c.CacheSize)
	}
	if c.Debug {
		c.LogLevel = "debug"
	}
	return nil
}
