package automation

import "os"

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

func writeSource(path, source string) error {
	return os.WriteFile(path, []byte(source), 0o644)
}
