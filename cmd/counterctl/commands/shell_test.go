package commands

import (
	"bytes"
	"strings"
	"testing"
)

// TestShellRestoresFlags cannot run in parallel: it drives the shared rootCmd.
func TestShellRestoresFlags(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		"help",
		`counter add --label "orders queue" --key-hex zz --correlation-id 77`,
		`counter add --label "unterminated`,
		"shell",
		"",
		"exit",
	}, "\n"))

	var out, errOut bytes.Buffer
	if err := runShell(in, &out, &errOut); err != nil {
		t.Fatalf("runShell: %v", err)
	}

	add, _, err := rootCmd.Find([]string{"counter", "add"})
	if err != nil {
		t.Fatalf("find counter add: %v", err)
	}
	for _, name := range []string{"label", "key-hex", "correlation-id", "type"} {
		f := add.Flags().Lookup(name)
		if f == nil {
			t.Fatalf("flag --%s not defined", name)
		}
		if f.Changed || f.Value.String() != f.DefValue {
			t.Errorf("--%s = %q (changed=%v) after shell line, want default %q",
				name, f.Value.String(), f.Changed, f.DefValue)
		}
	}

	stdout := out.String()
	for _, want := range []string{
		"counter add",
		"counter remove <registration-id>",
		"counter list",
		"health",
		"exit, quit",
		"counterctl " + transportName + " ",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("shell output missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "  shell ") {
		t.Errorf("help lists the shell command itself:\n%s", stdout)
	}

	stderr := errOut.String()
	for _, want := range []string{"parse --key-hex", "Unterminated double-quoted string", "already in the shell"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("shell errors missing %q:\n%s", want, stderr)
		}
	}
}

func TestShellPrompt(t *testing.T) {
	savedTransport, savedAddr, savedCmdAddr := transportName, serverAddr, commandAddr
	t.Cleanup(func() {
		transportName, serverAddr, commandAddr = savedTransport, savedAddr, savedCmdAddr
	})

	serverAddr = "10.0.0.1:50061"
	commandAddr = "10.0.0.1:40123"

	transportName = transportRPC
	if got, want := shellPrompt(), "counterctl rpc 10.0.0.1:50061> "; got != want {
		t.Errorf("rpc prompt = %q, want %q", got, want)
	}

	transportName = transportUDP
	if got, want := shellPrompt(), "counterctl udp 10.0.0.1:40123> "; got != want {
		t.Errorf("udp prompt = %q, want %q", got, want)
	}
}
