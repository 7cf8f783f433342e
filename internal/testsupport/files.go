package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills path with size bytes of a repeating pattern, creating
// parent directories. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// EngineScript returns a shell script that behaves like the speech engine:
// it reads --output-dir and --output-name and writes payload as the JSON
// transcript there.
func EngineScript(payload string) string {
	return `#!/bin/sh
dir=""
name=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output-dir) dir="$2"; shift ;;
    --output-name) name="$2"; shift ;;
  esac
  shift
done
cat > "$dir/$name.json" <<'JSON'
` + payload + `
JSON
`
}
