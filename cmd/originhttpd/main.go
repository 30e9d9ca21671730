// Command originhttpd is the CLI entry point: it parses spec §6's flags,
// assembles the content-rule table, and runs the event loop until a signal
// or a fatal startup error stops it.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/abgandar/originhttpd/internal/config"
	"github.com/abgandar/originhttpd/internal/dispatch"
	"github.com/abgandar/originhttpd/internal/handler"
	"github.com/abgandar/originhttpd/internal/mimefile"
	"github.com/abgandar/originhttpd/internal/server"
)

type flags struct {
	user        string
	chroot      string
	ip          string
	ip6         string
	port        int
	maxConn     int
	maxBodyLen  int
	maxWBLen    int64
	timeoutSecs int
	root        string
	listing     bool
}

func main() {
	os.Setenv("TZ", "GMT")

	f := &flags{}
	cmd := newRootCommand(f)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "originhttpd",
		Short:         "a small single-threaded origin HTTP server",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}
	cmd.FParseErrWhitelist.UnknownFlags = false

	fs := cmd.Flags()
	fs.StringVarP(&f.user, "user", "u", "", "unprivileged user to drop to after binding")
	fs.StringVarP(&f.chroot, "chroot", "c", "", "chroot root directory")
	fs.StringVarP(&f.ip, "ip", "i", "0.0.0.0", "IPv4 bind address")
	fs.StringVarP(&f.ip6, "ip6", "I", "", "IPv6 bind address")
	fs.IntVarP(&f.port, "port", "p", 80, "bind port")
	fs.IntVarP(&f.maxConn, "maxconn", "C", 1024, "maximum concurrent connections")
	fs.IntVarP(&f.maxBodyLen, "maxbodylen", "m", 2*1024*1024, "maximum request body size in bytes")
	fs.Int64VarP(&f.maxWBLen, "maxwblen", "M", 10*1024*1024, "maximum pending write-buffer size in bytes")
	fs.IntVarP(&f.timeoutSecs, "timeout", "t", 60, "idle connection timeout in seconds")
	fs.StringVar(&f.root, "root", "/var/www/html", "document root for the default disk-file rule")
	fs.BoolVar(&f.listing, "listing", false, "enable directory listings under the document root")

	return cmd
}

func run(f *flags) error {
	if f.maxConn < 1 {
		return fmt.Errorf("originhttpd: --maxconn must be at least 1")
	}

	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.New(
		config.WithUser(f.user),
		config.WithChroot(f.chroot),
		config.WithIPv4(f.ip),
		config.WithIPv6(f.ip6),
		config.WithPort(f.port),
		config.WithMaxConnGlobal(f.maxConn),
		config.WithMaxBody(f.maxBodyLen),
		config.WithMaxWBLen(f.maxWBLen),
		config.WithIdleTimeout(time.Duration(f.timeoutSecs)*time.Second),
	)

	table := &dispatch.Table{
		Rules: []dispatch.Rule{
			{
				Mode: dispatch.MatchDirectoryPrefix,
				Pattern: "/",
				Stop:    true,
				Handler: &handler.DiskFile{
					Root:             f.root,
					IndexFile:        "index.html",
					DirectoryListing: f.listing,
					Canonicalize:     cfg.Canonicalize,
					MIME:             mimefile.Default,
				},
			},
		},
	}
	cfg.Rules = table.Rules

	srv, err := server.New(cfg, table, log)
	if err != nil {
		log.WithError(err).Error("failed to start")
		return err
	}

	log.WithField("port", f.port).Info("originhttpd starting")
	if err := srv.Run(); err != nil {
		log.WithError(err).Error("server exited with error")
		return err
	}
	return nil
}
