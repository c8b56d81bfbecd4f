package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tOgg1/courier/internal/app"
	"github.com/tOgg1/courier/internal/crypto"
)

const sharedKeyWarning = "warning: message bodies are encrypted to a single shared public key; every participant must hold this same keypair"

func newKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the RSA keypair used for message bodies",
		Long: `Generate an RSA keypair and write it as PEM to keys.public_key_path and
keys.private_key_path. The same keypair must be installed on every client
that takes part in a conversation.`,
		Args: cobra.NoArgs,
		RunE: runKeygen,
	}
	cmd.Flags().Int("bits", 2048, "RSA modulus size in bits")
	cmd.Flags().Bool("force", false, "overwrite existing key files")
	return cmd
}

func runKeygen(cmd *cobra.Command, args []string) error {
	rt, err := EnsureRuntime(cmd)
	if err != nil {
		return err
	}
	bits, _ := cmd.Flags().GetInt("bits")
	force, _ := cmd.Flags().GetBool("force")

	if rt.Config.InlineKeys() {
		return Exitf(ExitCodeFailure, "keys are configured inline; unset keys.public_key and keys.private_key to generate key files")
	}
	if bits < 1024 {
		return usageError(cmd, fmt.Sprintf("--bits must be at least 1024, got %d", bits))
	}

	pubPath := rt.Config.Keys.PublicKeyPath
	privPath := rt.Config.Keys.PrivateKeyPath
	if !force {
		for _, path := range []string{pubPath, privPath} {
			if _, err := os.Stat(path); err == nil {
				return Exitf(ExitCodeFailure, "%s already exists (use --force to overwrite)", path)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return Exitf(ExitCodeFailure, "stat %s: %v", path, err)
			}
		}
	}

	priv, err := crypto.GenerateKeyPair(bits)
	if err != nil {
		return Exitf(ExitCodeFailure, "generate key: %v", err)
	}
	pubPEM, privPEM, err := crypto.EncodePEM(priv)
	if err != nil {
		return Exitf(ExitCodeFailure, "encode key: %v", err)
	}

	if err := writeKeyFile(privPath, privPEM, 0o600); err != nil {
		return err
	}
	if err := writeKeyFile(pubPath, pubPEM, 0o644); err != nil {
		return err
	}

	fingerprint, err := crypto.Fingerprint(&priv.PublicKey)
	if err != nil {
		return Exitf(ExitCodeFailure, "fingerprint: %v", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "public key:  %s\n", pubPath)
	fmt.Fprintf(out, "private key: %s\n", privPath)
	fmt.Fprintf(out, "fingerprint: %s\n", fingerprint)
	fmt.Fprintln(cmd.ErrOrStderr(), sharedKeyWarning)
	PrintNextSteps(out, HintContext{Action: "keygen"})
	return nil
}

func writeKeyFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Exitf(ExitCodeFailure, "create key directory: %v", err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return Exitf(ExitCodeFailure, "write %s: %v", path, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, perm); err != nil {
		return Exitf(ExitCodeFailure, "chmod %s: %v", path, err)
	}
	return nil
}

type fingerprintOutput struct {
	Fingerprint     string `json:"fingerprint"`
	ModulusBits     int    `json:"modulus_bits"`
	MaxMessageBytes int    `json:"max_message_bytes"`
}

func newFingerprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Show the fingerprint of the configured keypair",
		Args:  cobra.NoArgs,
		RunE:  runFingerprint,
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	rt, err := EnsureRuntime(cmd)
	if err != nil {
		return err
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx := commandContext(cmd)
	keys := app.KeyProvider(rt.Config)
	pub, err := keys.PublicKey(ctx)
	if err != nil {
		return Exitf(ExitCodeFailure, "load keys: %v", err)
	}
	fingerprint, err := crypto.Fingerprint(pub)
	if err != nil {
		return Exitf(ExitCodeFailure, "fingerprint: %v", err)
	}

	result := fingerprintOutput{
		Fingerprint:     fingerprint,
		ModulusBits:     pub.N.BitLen(),
		MaxMessageBytes: crypto.MaxPlaintextSize(pub),
	}
	if jsonOutput {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return Exitf(ExitCodeFailure, "encode fingerprint: %v", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Fingerprint)
	fmt.Fprintf(out, "%d-bit RSA, messages up to %d bytes\n", result.ModulusBits, result.MaxMessageBytes)
	return nil
}
