package cmd

import (
	"fmt"
	"io"
)

const banner = `
     _                                 _
  __| | ___   ___ ___  ___  ___ ___(_) ___  _ __
 / _` + "`" + ` |/ _ \ / __/ __|/ _ \/ __/ __| |/ _ \| '_ \
| (_| | (_) | (__\__ \  __/\__ \__ \ | (_) | | | |
 \__,_|\___/ \___|___/\___||___/___/_|\___/|_| |_|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Document Session Client - Version %s\x1b[0m\n\n", Version)
}
