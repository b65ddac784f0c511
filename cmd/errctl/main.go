// Command errctl inspects and maintains the faultline error archive.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Error("errctl failed")
		os.Exit(1)
	}
}
