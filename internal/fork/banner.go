package fork

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

type bannerResult struct {
	keys   []string
	listen string
	err    error
}

var (
	privateKeyLine = regexp.MustCompile(`^\(\d+\)\s+(0x[0-9a-fA-F]{64})\s*$`)
	listeningLine  = regexp.MustCompile(`^Listening on\s+(\S+)`)
)

const bannerTailLines = 5

// readBanner consumes anvil's startup output up to the "Listening on" line,
// collecting the dev account private keys printed under "Private Keys".
func readBanner(r io.Reader, logger *zap.Logger) bannerResult {
	scanner := bufio.NewScanner(r)
	var (
		res    bannerResult
		inKeys bool
		tail   []string
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if logger != nil {
			logger.Debug("anvil", zap.String("line", line))
		}
		if line != "" {
			tail = append(tail, line)
			if len(tail) > bannerTailLines {
				tail = tail[1:]
			}
		}

		switch {
		case strings.HasPrefix(line, "Private Keys"):
			inKeys = true
		case strings.HasPrefix(line, "Wallet"), strings.HasPrefix(line, "Available Accounts"):
			inKeys = false
		case inKeys && privateKeyLine.MatchString(line):
			res.keys = append(res.keys, privateKeyLine.FindStringSubmatch(line)[1])
		}

		if m := listeningLine.FindStringSubmatch(line); m != nil {
			res.listen = m[1]
			return res
		}
	}
	if err := scanner.Err(); err != nil {
		res.err = fmt.Errorf("read anvil output: %w", err)
		return res
	}
	res.err = fmt.Errorf("anvil exited before listening: %s", strings.Join(tail, " | "))
	return res
}
