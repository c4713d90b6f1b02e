// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logger

import (
	"bufio"
	"html/template"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
)

const tailLines = 250

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Kiln Log</title>
  <style>
    body { font-family: Arial, sans-serif; margin: 2em; background: #f9f9f9; color: #333; }
    .btn { display:inline-block; padding:0.5em 1em; margin:0.2em; font-size:0.9em;
           background:#007bff; color:white; border:none; border-radius:4px; cursor:pointer; }
    .btn-danger { background:#dc3545; }
    pre.log { background:#222; color:#eee; padding:1em; border-radius:6px; max-height:500px; overflow:auto; }
  </style>
</head>
<body>
  <h1>Kiln Controller Log</h1>
  <p><b>Debug:</b> {{if .Debug}}<span style="color:green;">ON</span>{{else}}<span style="color:red;">OFF</span>{{end}}</p>
  <form method="POST" action="toggle" style="display:inline;">
    <button class="btn" type="submit">Toggle Debug</button>
  </form>
  <form method="POST" action="clear" style="display:inline;">
    <button class="btn btn-danger" type="submit">Clear Log</button>
  </form>
  <p><a href="tail?n={{.Lines}}">plain text</a></p>
  <h2>Last {{.Lines}} log lines</h2>
  <pre class="log">{{.Log}}</pre>
</body>
</html>
`))

// WebService serves the log page, mounted under a prefix. Paths are
// relative so the page works wherever it is attached.
func WebService() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /toggle", func(w http.ResponseWriter, r *http.Request) {
		EnableDebug(!IsDebug())
		http.Redirect(w, r, "./", http.StatusSeeOther)
	})
	mux.HandleFunc("POST /clear", func(w http.ResponseWriter, r *http.Request) {
		if err := clearLog(); err != nil {
			http.Error(w, "failed to clear log: "+err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "./", http.StatusSeeOther)
	})
	mux.HandleFunc("GET /tail", func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.URL.Query().Get("n"))
		if err != nil || n <= 0 {
			n = tailLines
		}
		lines, err := tail(n)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, strings.Join(lines, "\n"))
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		lines, _ := tail(tailLines)
		page.Execute(w, map[string]any{
			"Debug": IsDebug(),
			"Lines": tailLines,
			"Log":   strings.Join(lines, "\n"),
		})
	})
	return mux
}

// clearLog truncates the log file in place.
func clearLog() error {
	baseMu.Lock()
	defer baseMu.Unlock()
	if logFile == nil {
		return nil
	}
	return logFile.Truncate(0)
}

// tail returns up to n of the last lines of the log file, keeping only
// n lines in memory while scanning.
func tail(n int) ([]string, error) {
	baseMu.RLock()
	if logFile == nil {
		baseMu.RUnlock()
		return nil, nil
	}
	name := logFile.Name()
	baseMu.RUnlock()

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, n)
	count := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ring[count%n] = sc.Text()
		count++
	}
	if count <= n {
		return ring[:count], sc.Err()
	}
	start := count % n
	return append(ring[start:], ring[:start]...), sc.Err()
}

func newBaseLogger(w io.Writer) *log.Logger {
	return log.New(w, "", log.LstdFlags)
}
