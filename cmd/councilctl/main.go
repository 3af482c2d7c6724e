package main

import (
	"flag"
	"os"

	"k8s.io/klog/v2"

	"github.com/weibaohui/decision-council/internal/cli"
)

func main() {
	klog.InitFlags(flag.CommandLine)
	defer klog.Flush()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
