package commands

import (
	"bytes"
	"encoding/hex"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/nettest"

	"github.com/skycoin/rdt/internal/testhelpers"
	"github.com/skycoin/rdt/pkg/datagram"
	"github.com/skycoin/rdt/pkg/sender"
	"github.com/skycoin/rdt/pkg/transferlog"
)

// receive runs a Go-Back-N receiver on pc and yields the delivered bytes
// once the end-of-transfer datagram arrives.
func receive(t *testing.T, pc net.PacketConn) <-chan []byte {
	out := make(chan []byte, 1)
	go func() {
		var delivered bytes.Buffer
		expected := uint16(1)
		b := make([]byte, datagram.MaxSize)
		for {
			n, addr, err := pc.ReadFrom(b)
			if err != nil {
				close(out)
				return
			}
			d, err := datagram.Decode(b[:n])
			if err != nil || !d.Valid() {
				continue
			}

			ack := expected - 1
			if d.SeqNum == expected {
				if d.IsSentinel() {
					out <- delivered.Bytes()
					return
				}
				delivered.Write(d.Payload)
				ack = expected
				expected++
			}

			frame, err := datagram.NewAck(ack).MarshalBinary()
			if err != nil {
				t.Error(err)
				continue
			}
			if _, err := pc.WriteTo(frame, addr); err != nil {
				t.Error(err)
			}
		}
	}()
	return out
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "rdt-sender")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, os.RemoveAll(dir))
	})
	return dir
}

func TestRootCmd_Transfer(t *testing.T) {
	pc, err := nettest.NewLocalPacketListener("udp")
	require.NoError(t, err)
	defer pc.Close() // nolint: errcheck
	require.NoError(t, pc.SetDeadline(time.Now().Add(30*time.Second)))

	dir := tempDir(t)
	data := make([]byte, 25*datagram.MaxPayloadLength+17)
	for i := range data {
		data[i] = byte(i)
	}
	file := filepath.Join(dir, "payload.bin")
	require.NoError(t, ioutil.WriteFile(file, data, 0600))
	storePath := filepath.Join(dir, "transfers.db")

	host, port, err := net.SplitHostPort(pc.LocalAddr().String())
	require.NoError(t, err)

	delivered := receive(t, pc)

	cmd := newRootCmd(&runCfg{})
	cmd.SetOut(ioutil.Discard)
	cmd.SetArgs([]string{"-h", host, "-p", port, "-f", file, "-d", "1", "--log-store", storePath})
	errCh := make(chan error, 1)
	go func() {
		errCh <- cmd.Execute()
	}()
	require.NoError(t, testhelpers.WithinTimeout(errCh))

	select {
	case got := <-delivered:
		assert.Equal(t, data, got)
	case <-time.After(10 * time.Second):
		t.Fatal("receiver did not see the end of the transfer")
	}

	store, err := transferlog.BoltDBStore(storePath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close())
	}()

	entries, err := store.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Succeeded())
	assert.Equal(t, uint64(len(data)), entries[0].Bytes)
	assert.Equal(t, uint64(26), entries[0].Datagrams)
	assert.Equal(t, file, entries[0].File)

	sum := blake2b.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), entries[0].Digest)
}

func TestRootCmd_MissingFile(t *testing.T) {
	cmd := newRootCmd(&runCfg{})
	cmd.SetOut(ioutil.Discard)
	cmd.SetArgs([]string{"-h", "127.0.0.1", "-p", "9", "-f", filepath.Join(tempDir(t), "absent"), "-d", "0"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))
	assert.True(t, cmd.SilenceUsage)
}

func TestReadConfig(t *testing.T) {
	t.Run("missing required flags", func(t *testing.T) {
		for _, args := range [][]string{
			{"-p", "9000", "-f", "x"},
			{"-h", "localhost", "-f", "x"},
			{"-h", "localhost", "-p", "9000"},
		} {
			cfg := &runCfg{}
			cmd := newRootCmd(cfg)
			require.NoError(t, cmd.ParseFlags(args))
			assert.Error(t, cfg.readConfig(cmd), "%v", args)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		cfg := &runCfg{}
		cmd := newRootCmd(cfg)
		require.NoError(t, cmd.ParseFlags([]string{"--host", "localhost", "--port", "9000", "--file", "x"}))
		require.NoError(t, cfg.readConfig(cmd))

		assert.Equal(t, 3, cfg.conf.Debug)
		assert.Equal(t, sender.DefaultConfig(), cfg.conf.Sender)
		assert.Equal(t, sender.Duration(time.Millisecond), cfg.conf.PollInterval)
	})

	t.Run("flags override config file", func(t *testing.T) {
		path := filepath.Join(tempDir(t), "config.json")
		conf := `{
			"host": "example.org",
			"port": 7000,
			"file": "from-config.txt",
			"debug": 4,
			"sender": {"window_size": 20, "retransmit_timeout": "250ms", "max_retransmits": 5},
			"poll_interval": "2ms"
		}`
		require.NoError(t, ioutil.WriteFile(path, []byte(conf), 0600))

		cfg := &runCfg{}
		cmd := newRootCmd(cfg)
		require.NoError(t, cmd.ParseFlags([]string{"--config", path, "-p", strconv.Itoa(7001), "--window", "4"}))
		require.NoError(t, cfg.readConfig(cmd))

		assert.Equal(t, "example.org", cfg.conf.Host)
		assert.Equal(t, 7001, cfg.conf.Port)
		assert.Equal(t, "from-config.txt", cfg.conf.File)
		assert.Equal(t, 4, cfg.conf.Debug)
		assert.Equal(t, 4, cfg.conf.Sender.WindowSize)
		assert.Equal(t, sender.Duration(250*time.Millisecond), cfg.conf.Sender.RetransmitTimeout)
		assert.Equal(t, 5, cfg.conf.Sender.MaxRetransmits)
		assert.Equal(t, sender.Duration(2*time.Millisecond), cfg.conf.PollInterval)
	})

	t.Run("invalid values", func(t *testing.T) {
		for _, args := range [][]string{
			{"-h", "localhost", "-p", "70000", "-f", "x"},
			{"-h", "localhost", "-p", "9000", "-f", "x", "-d", "6"},
			{"-h", "localhost", "-p", "9000", "-f", "x", "--window", "0"},
			{"-h", "localhost", "-p", "9000", "-f", "x", "--timeout", "0s"},
		} {
			cfg := &runCfg{}
			cmd := newRootCmd(cfg)
			require.NoError(t, cmd.ParseFlags(args))
			assert.Error(t, cfg.readConfig(cmd), "%v", args)
		}
	})
}
