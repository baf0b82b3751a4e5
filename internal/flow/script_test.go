package flow

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeField(w io.Writer, f Field) error {
	buf := make([]byte, len(f.Data)*4)
	for i, v := range f.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return err
}

// fakeWorker speaks the worker protocol: it answers every request with a
// constant flow, or with an error when fail is set.
func fakeWorker(t *testing.T, in io.Reader, out io.Writer, fail bool) {
	r := bufio.NewReader(in)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			t.Errorf("bad request header: %v", err)
			return
		}
		payload := make([]byte, req.Width*req.Height*3*2)
		if _, err := io.ReadFull(r, payload); err != nil {
			return
		}
		if fail {
			resp, _ := json.Marshal(response{OK: false, Error: "CUDA error"})
			out.Write(append(resp, '\n'))
			continue
		}
		resp, _ := json.Marshal(response{OK: true})
		out.Write(append(resp, '\n'))
		writeField(out, uniformField(req.Width, req.Height, 0.5, float32(req.Iters)))
	}
}

func TestExchange(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go fakeWorker(t, reqR, respW, false)
	defer reqW.Close()

	a := noiseFrame(4, 3, 1)
	b := noiseFrame(4, 3, 2)
	reader := bufio.NewReader(respR)

	for i := 0; i < 2; i++ {
		f, err := exchange(reqW, reader, a, b, 12)
		require.NoError(t, err)
		require.Equal(t, 4, f.Width)
		require.Equal(t, 3, f.Height)
		dx, dy := f.At(3, 2)
		assert.Equal(t, float32(0.5), dx)
		assert.Equal(t, float32(12), dy)
	}
}

func TestExchangeWorkerError(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go fakeWorker(t, reqR, respW, true)
	defer reqW.Close()

	_, err := exchange(reqW, bufio.NewReader(respR), noiseFrame(2, 2, 1), noiseFrame(2, 2, 2), 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA error")
}

func TestStartScriptModelRequiresPaths(t *testing.T) {
	_, err := StartScriptModel(ScriptConfig{}, nil)
	assert.Error(t, err)
}
