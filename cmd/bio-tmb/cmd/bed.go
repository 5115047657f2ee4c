// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/tmb/burden"
	"v.io/x/lib/cmdline"
)

func newCmdBed() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "bed",
		Short:    "Generate a target BED from a reference FASTA",
		ArgsName: "fapath",
	}
	opts := burden.DefaultTargetOpts
	outPath := cmd.Flags.String("out", "targets.bed", "Output BED path")
	cmd.Flags.StringVar(&opts.Letters, "target-letters", burden.DefaultTargetOpts.Letters, "Reference bases treated as targeted territory")
	cmd.Flags.BoolVar(&opts.CaseSensitive, "case-sensitive", burden.DefaultTargetOpts.CaseSensitive, "Keep soft-masked (lowercase) bases out of the target set")
	cmd.Flags.BoolVar(&opts.HumanAutosome, "human-autosome", burden.DefaultTargetOpts.HumanAutosome, "Restrict output to the 22 human autosomes (chrN or N contig names)")
	cmd.Flags.BoolVar(&opts.BGZF, "bgzf", burden.DefaultTargetOpts.BGZF, "bgzf-compress the output")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("bed takes one fapath argument, but got %v", argv)
		}
		return burden.GenerateTargets(vcontext.Background(), argv[0], *outPath, opts)
	})
	return cmd
}
