//go:build mage

// Copyright 2021-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "pvholdings"
	modulePath = "github.com/penny-vault/pv-holdings"
	coverFile  = "coverage.out"
)

var ldflags = fmt.Sprintf("-X %[1]s/common.commitHash=$COMMIT_HASH -X %[1]s/common.buildDate=$BUILD_DATE", modulePath)

// GOEXE overrides the go executable
var goexe = "go"

func init() {
	if exe := os.Getenv("GOEXE"); exe != "" {
		goexe = exe
	}
}

// Build the pvholdings binary
func Build() error {
	return sh.RunWith(versionEnv(), goexe, withPlatformFlags("build", "-o", binaryName, "-ldflags", ldflags, ".")...)
}

// Install pvholdings into GOBIN
func Install() error {
	return sh.RunWith(versionEnv(), goexe, withPlatformFlags("install", "-ldflags", ldflags, ".")...)
}

// Remove build output
func Clean() {
	for _, f := range []string{binaryName, coverFile} {
		if err := os.RemoveAll(f); err != nil {
			fmt.Printf("could not remove %s: %v\n", f, err)
		}
	}
}

// Run formatting, vet and race tests
func Check() {
	mg.SerialDeps(Fmt, Vet, TestRace)
}

// Run tests
func Test() error {
	return quietRun(goexe, withPlatformFlags("test", "./...")...)
}

// Run tests with race detector
func TestRace() error {
	return quietRun(goexe, withPlatformFlags("test", "-race", "./...")...)
}

// Fail if any file is not gofmt'ed
func Fmt() error {
	out, err := sh.Output("gofmt", "-l", ".")
	if err != nil {
		return err
	}

	var unformatted []string
	for _, f := range strings.Fields(out) {
		if !strings.HasPrefix(f, "_") {
			unformatted = append(unformatted, f)
		}
	}
	if len(unformatted) > 0 {
		fmt.Println("The following files are not gofmt'ed:")
		fmt.Println(strings.Join(unformatted, "\n"))
		return errors.New("improperly formatted go files")
	}
	return nil
}

// Run go vet
func Vet() error {
	if err := sh.Run(goexe, "vet", "./..."); err != nil {
		return fmt.Errorf("error running go vet: %w", err)
	}
	return nil
}

// Open an HTML test coverage report
func Cover() error {
	if err := sh.Run(goexe, "test", "-covermode=count", "-coverprofile="+coverFile, "./..."); err != nil {
		return err
	}
	return sh.Run(goexe, "tool", "cover", "-html="+coverFile)
}

func withPlatformFlags(args ...string) []string {
	if runtime.GOOS == "windows" {
		return append([]string{args[0], "-buildmode", "exe"}, args[1:]...)
	}
	return args
}

func versionEnv() map[string]string {
	hash, _ := sh.Output("git", "rev-parse", "--short", "HEAD")
	return map[string]string{
		"COMMIT_HASH": hash,
		"BUILD_DATE":  time.Now().Format("2006-01-02T15:04:05Z0700"),
	}
}

// quietRun only prints the command output when it fails, unless mage runs verbose
func quietRun(cmd string, args ...string) error {
	if mg.Verbose() {
		return sh.Run(cmd, args...)
	}
	out, err := sh.Output(cmd, args...)
	if err != nil {
		fmt.Fprintln(os.Stderr, out)
	}
	return err
}
