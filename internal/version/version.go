package version

import "fmt"

// Заполняются через -ldflags "-X github.com/vladislavdragonenkov/pedidos/internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает сборку бинаря.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Current возвращает данные текущей сборки.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}

// ClientID строит идентификатор процесса для брокера: "<service>/<version>".
func ClientID(service string) string {
	if service == "" {
		service = "pedidos"
	}
	return service + "/" + version
}
