package askpass

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/upkit-dev/upkit/internal/errs"
)

// WriteShim writes a small shell script at dir/<name>-askpass that, when
// executed by sudo/ssh with the prompt text as its first argument,
// re-invokes selfExe's hidden askpass-client subcommand against sockPath
// (spec §4.8 step 2). Returns the shim's absolute path.
func WriteShim(dir, name, selfExe, sockPath string) (string, error) {
	shimPath := filepath.Join(dir, name+"-askpass")
	script := fmt.Sprintf("#!/bin/sh\nexec %s __askpass-client %s \"$@\"\n", shellQuote(selfExe), shellQuote(sockPath))
	if err := os.WriteFile(shimPath, []byte(script), 0o700); err != nil {
		return "", errs.Exec("writing askpass shim", err)
	}
	return shimPath, nil
}

// EnvVars returns the environment variables an installer subprocess needs
// to honor the given askpass shim (spec §4.8 step 3): both SUDO_ASKPASS
// and SSH_ASKPASS point at it, SSH_ASKPASS_REQUIRE is forced so ssh uses
// it even when attached to a terminal, and DISPLAY is cleared since
// openssh only consults SSH_ASKPASS_REQUIRE=force when DISPLAY is unset
// on some versions.
func EnvVars(shimPath string) []string {
	return []string{
		"SUDO_ASKPASS=" + shimPath,
		"SSH_ASKPASS=" + shimPath,
		"SSH_ASKPASS_REQUIRE=force",
		"DISPLAY=",
	}
}

// RunClient is the hidden `__askpass-client` subcommand's implementation:
// it connects to sockPath, sends the prompt (argv[1], if any) as the
// broker's request, and writes the reply to stdout.
func RunClient(sockPath string, prompt string, out io.Writer) error {
	conn, err := net.DialTimeout("unix", sockPath, requestTimeout)
	if err != nil {
		return errs.Exec("connecting to askpass broker", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(requestTimeout))

	payload, err := json.Marshal(request{Prompt: prompt})
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(payload, 0)); err != nil {
		return errs.Exec("sending askpass request", err)
	}

	reply, err := io.ReadAll(bufio.NewReader(conn))
	if err != nil {
		return errs.Exec("reading askpass reply", err)
	}
	_, err = out.Write(reply)
	return err
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
