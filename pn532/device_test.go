// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pn532

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tt2 "github.com/ZaparooProject/go-tt2"
	testutil "github.com/ZaparooProject/go-tt2/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tagTransport answers InDataExchange from a VirtualTag, the way a PN532
// with that tag in its field would.
type tagTransport struct {
	tag *testutil.VirtualTag
}

func (t *tagTransport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if cmd != cmdInDataExchange {
		return []byte{cmd + 1, 0x00}, nil
	}

	var err error
	var data []byte
	switch args[1] {
	case tagCmdRead:
		data, err = t.tag.ReadBlock(ctx, args[2])
	case tagCmdWrite:
		err = t.tag.WriteBlock(ctx, args[2], args[3:])
	}

	var se *testutil.StatusError
	switch {
	case errors.As(err, &se):
		return testutil.BuildStatusResponse(cmd, se.Status), nil
	case err != nil:
		return nil, err
	}
	return testutil.BuildDataExchangeResponse(data), nil
}

func (*tagTransport) Close() error { return nil }

// ctxTransport reports the context of each command.
type ctxTransport struct {
	seen func(ctx context.Context)
}

func (t *ctxTransport) SendCommand(ctx context.Context, cmd byte, _ []byte) ([]byte, error) {
	t.seen(ctx)
	return []byte{cmd + 1, 0x00}, nil
}

func (*ctxTransport) Close() error { return nil }

func TestInit(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockTransport()
	device := New(mock, nil)

	require.NoError(t, device.Init(context.Background()))
	assert.Equal(t, [][]byte{{0x01, 0x14, 0x01}}, mock.CallsFor(cmdSAMConfiguration))
}

func TestInit_ErrorFrame(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockTransport()
	mock.SetResponse(cmdSAMConfiguration, testutil.BuildErrorFrameResponse())

	err := New(mock, nil).Init(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedResponse)
	assert.Contains(t, err.Error(), "SAM configuration failed")
}

func TestFirmwareVersion(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockTransport()
	mock.SetResponse(cmdGetFirmwareVersion, testutil.BuildFirmwareVersionResponse())

	fw, err := New(mock, nil).FirmwareVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(0x32), fw.IC)
	assert.Equal(t, "PN532 v1.6", fw.String())

	mock.SetResponse(cmdGetFirmwareVersion, []byte{0x03, 0x32})
	_, err = New(mock, nil).FirmwareVersion(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestDetectTarget(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockTransport()
	mock.SetResponse(cmdInListPassiveTarget, testutil.BuildTagDetectionResponse(testutil.TestUltralightUID))
	device := New(mock, nil)

	target, err := device.DetectTarget(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutil.TestUltralightUID, target.UID)
	assert.Equal(t, "04abcdef123456", target.UIDString())
	assert.Equal(t, [2]byte{0x00, 0x44}, target.ATQA)
	assert.Equal(t, byte(0x00), target.SAK)
	assert.Equal(t, byte(1), target.Number)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, byte(cmdInRelease), calls[0].Cmd)
	assert.Equal(t, byte(cmdInListPassiveTarget), calls[1].Cmd)
	assert.Equal(t, []byte{0x01, 0x00}, calls[1].Args)
}

func TestDetectTarget_NoTag(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockTransport()
	mock.SetResponse(cmdInListPassiveTarget, testutil.BuildNoTagResponse())

	_, err := New(mock, nil).DetectTarget(context.Background())
	require.ErrorIs(t, err, ErrNoTarget)
}

func TestDetectTarget_ReleaseFailureIgnored(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockTransport()
	mock.SetError(cmdInRelease, errors.New("release failed"))
	mock.SetResponse(cmdInListPassiveTarget, testutil.BuildTagDetectionResponse(testutil.TestUltralightUID))

	_, err := New(mock, nil).DetectTarget(context.Background())
	require.NoError(t, err)
}

func TestParseTarget_Truncated(t *testing.T) {
	t.Parallel()

	_, err := parseTarget([]byte{0x01, 0x01, 0x00, 0x44, 0x00, 0x07, 0x04})
	require.ErrorIs(t, err, ErrUnexpectedResponse)

	_, err = parseTarget([]byte{0x01, 0x01})
	require.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestReadBlock(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0xAB}, 16)
	mock := testutil.NewMockTransport()
	mock.QueueResponse(cmdInDataExchange, testutil.BuildDataExchangeResponse(data))

	got, err := New(mock, nil).ReadBlock(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, [][]byte{{0x01, 0x30, 0x04}}, mock.CallsFor(cmdInDataExchange))
}

func TestReadBlock_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		check    func(t *testing.T, err error)
		name     string
		response []byte
	}{
		{
			name:     "tag status",
			response: testutil.BuildStatusResponse(cmdInDataExchange, 0x01),
			check: func(t *testing.T, err error) {
				var de *tt2.DeviceError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, "read", de.Op)
				assert.Equal(t, 0x10, de.Block)
				assert.Equal(t, 0x01, tt2.StatusCode(err))
			},
		},
		{
			name:     "error frame",
			response: testutil.BuildErrorFrameResponse(),
			check: func(t *testing.T, err error) {
				assert.Equal(t, 0x7F, tt2.StatusCode(err))
			},
		},
		{
			name:     "short data",
			response: testutil.BuildDataExchangeResponse([]byte{1, 2, 3, 4}),
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, tt2.ErrInvalidBlockData)
			},
		},
		{
			name:     "wrong response code",
			response: []byte{0x43, 0x00},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrUnexpectedResponse)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := testutil.NewMockTransport()
			mock.SetResponse(cmdInDataExchange, tt.response)

			_, err := New(mock, nil).ReadBlock(context.Background(), 0x10)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestReadBlock_TransportError(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockTransport()
	mock.SetError(cmdInDataExchange, tt2.NewTransportTimeoutError("read frame", "mock"))

	_, err := New(mock, nil).ReadBlock(context.Background(), 4)
	require.ErrorIs(t, err, tt2.ErrTransportTimeout)
	assert.True(t, tt2.IsRetryable(err))
	assert.Equal(t, -1, tt2.StatusCode(err))
}

func TestWriteBlock(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockTransport()
	device := New(mock, nil)

	require.NoError(t, device.WriteBlock(context.Background(), 5, []byte{1, 2, 3, 4}))
	assert.Equal(t, [][]byte{{0x01, 0xA2, 0x05, 1, 2, 3, 4}}, mock.CallsFor(cmdInDataExchange))

	err := device.WriteBlock(context.Background(), 5, []byte{1, 2, 3})
	require.ErrorIs(t, err, tt2.ErrInvalidBlockData)
	assert.Len(t, mock.CallsFor(cmdInDataExchange), 1)

	mock.SetResponse(cmdInDataExchange, testutil.BuildStatusResponse(cmdInDataExchange, 0x14))
	err = device.WriteBlock(context.Background(), 6, []byte{1, 2, 3, 4})
	assert.Equal(t, 0x14, tt2.StatusCode(err))
}

func TestDevice_UsesDetectedTargetNumber(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockTransport()
	mock.SetResponse(cmdInListPassiveTarget, []byte{0x4B, 0x01, 0x02, 0x00, 0x44, 0x00, 0x04, 1, 2, 3, 4})
	device := New(mock, nil)

	_, err := device.DetectTarget(context.Background())
	require.NoError(t, err)
	require.NoError(t, device.WriteBlock(context.Background(), 4, []byte{0, 0, 0, 0}))
	assert.Equal(t, byte(0x02), mock.CallsFor(cmdInDataExchange)[0][0])
}

func TestDevice_CommandTimeout(t *testing.T) {
	t.Parallel()

	var deadlines []bool
	transport := &ctxTransport{seen: func(ctx context.Context) {
		_, ok := ctx.Deadline()
		deadlines = append(deadlines, ok)
	}}

	require.NoError(t, New(transport, &Config{CommandTimeout: time.Second}).Init(context.Background()))
	require.NoError(t, New(transport, &Config{}).Init(context.Background()))
	assert.Equal(t, []bool{true, false}, deadlines)
}

func TestDevice_Close(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockTransport()
	require.NoError(t, New(mock, nil).Close())
	assert.True(t, mock.IsClosed())
}

func TestDevice_CodecRoundTrip(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralightC(nil)
	device := New(&tagTransport{tag: tag}, nil)
	payload := bytes.Repeat([]byte{0x7E}, 60)

	require.NoError(t, tt2.Write(context.Background(), device, payload))
	got, err := tt2.ReadNDEF(context.Background(), device)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	variant, err := tt2.DetectVariant(context.Background(), device, testutil.TestUltralightUID)
	require.NoError(t, err)
	assert.Equal(t, tt2.VariantUltralightC, variant)
}

func TestDevice_VariantProbeOnUltralight(t *testing.T) {
	t.Parallel()

	device := New(&tagTransport{tag: testutil.NewVirtualUltralight(nil)}, nil)
	variant, err := tt2.DetectVariant(context.Background(), device, testutil.TestUltralightUID)
	require.NoError(t, err)
	assert.Equal(t, tt2.VariantUltralight, variant)
}
