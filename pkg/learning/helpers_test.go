package learning

import "os"

// writeRaw writes raw bytes to path for tests exercising corrupt-file
// degradation.
func writeRaw(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
