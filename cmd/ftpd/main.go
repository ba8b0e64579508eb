// Command ftpd runs a multi-user FTP server that confines every user to
// their own directory.
//
// Usage:
//
//	ftpd --port 2115 --users users.cfg --root ./ftproot --dpr 27500-27999
//
// Every flag can also be set in a config file (--config) or through an
// FTPD_ environment variable, e.g. FTPD_DATA_TIMEOUT=30s.
package main

import (
	"os"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
