package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestReplayCommand(t *testing.T) {
	scenario := filepath.Join("..", "..", "internal", "replay", "testdata", "basic.yaml")

	convey.Convey("Given the replay CLI", t, func() {
		var stdout, stderr bytes.Buffer
		app := newApp(&stdout, &stderr)

		convey.Convey("When run with --digest-only", func() {
			err := app.Run([]string{"replay", "run", "--scenario", scenario, "--digest-only"})

			convey.Convey("Then only the digest is printed", func() {
				convey.So(err, convey.ShouldBeNil)
				out := strings.TrimSpace(stdout.String())
				convey.So(len(out), convey.ShouldEqual, 64)
			})
		})

		convey.Convey("When run with the full report", func() {
			err := app.Run([]string{"replay", "run", "-s", scenario})

			convey.Convey("Then stats, the board and the digest are printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(stdout.String(), convey.ShouldContainSubstring, "settled=4")
				convey.So(stdout.String(), convey.ShouldContainSubstring, "bob")
				convey.So(stdout.String(), convey.ShouldContainSubstring, "digest ")
			})
		})

		convey.Convey("When an expectation fails", func() {
			bad := filepath.Join(t.TempDir(), "bad.yaml")
			content := "steps:\n  - {account: a, action: finish, place: 1}\n"
			convey.So(os.WriteFile(bad, []byte(content), 0o600), convey.ShouldBeNil)

			err := app.Run([]string{"replay", "run", "--scenario", bad})

			convey.Convey("Then the mismatch is reported", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(stderr.String(), convey.ShouldContainSubstring, `outcome "no_run", want ""`)
			})
		})

		convey.Convey("When the scenario flag is missing", func() {
			err := app.Run([]string{"replay", "run"})
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
