// Package version хранит сборочные метаданные бинарников пайплайна,
// заполняемые через -ldflags при сборке.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// String собирает сборочную информацию в одну строку для стартового лога.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
