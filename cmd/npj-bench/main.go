// Copyright 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/matrixorigin/npjoin/pkg/logutil"
)

var (
	configFile = flag.String("cfg", "./npj.toml", "toml configuration of the join benchmark")
)

func main() {
	flag.Parse()

	cfg, err := parseConfigFromFile(*configFile)
	if err != nil {
		panic(fmt.Sprintf("failed to parse config from %s, error: %s", *configFile, err.Error()))
	}

	setupLogger(cfg)

	res, err := run(context.Background(), cfg)
	if err != nil {
		logutil.Fatal("join benchmark failed", zap.Error(err))
	}
	printSummary(os.Stdout, cfg, res)
}

func setupLogger(cfg *Config) {
	logutil.SetupMOLogger(&cfg.Log)
}
