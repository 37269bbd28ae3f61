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

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	tt2 "github.com/ZaparooProject/go-tt2"
	"github.com/ZaparooProject/go-tt2/polling"
	"github.com/hsanjuan/go-ndef"
)

func runCompose(opts *options) error {
	raw, err := ndef.NewTextMessage(opts.arg, "en").Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode text record: %w", err)
	}

	image := tt2.Compose(raw)
	cc, err := tt2.DecodeCC(image)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(opts.out, "Image: %d bytes, %s\n", len(image), cc)
	if len(image) > tt2.UltralightCapacity {
		_, _ = fmt.Fprintf(opts.out, "Needs an Ultralight C (%d byte data area)\n", cc.DataSize())
	}
	_, _ = fmt.Fprint(opts.out, hex.Dump(image))
	_, _ = fmt.Fprint(opts.out, tt2.TLVDebugInfo(image[tt2.HeaderSize:]))
	return nil
}

func runRead(ctx context.Context, rd reader, opts *options) error {
	return withTag(ctx, rd, opts.cfg, func(ctx context.Context, tag *tt2.Tag) error {
		return printTag(ctx, tag, opts)
	})
}

func runWatch(ctx context.Context, rd reader, opts *options) error {
	session := polling.NewSession(rd, polling.DefaultConfig())
	session.OnCardDetected = func(ctx context.Context, uid []byte) error {
		tag := tt2.NewTag(rd, uid)
		err := tt2.RetryWithConfig(ctx, retryConfig(opts.cfg), func(ctx context.Context) error {
			return printTag(ctx, tag, opts)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			_, _ = fmt.Fprintf(opts.out, "Failed to read tag %s: %v\n", tag.UID(), err)
		}
		return nil
	}
	session.OnCardRemoved = func() {
		_, _ = fmt.Fprintln(opts.out, "Tag removed - ready for next tag...")
	}

	_, _ = fmt.Fprintln(opts.out, "Starting continuous tag monitoring. Press Ctrl+C to stop...")
	return session.Start(ctx)
}

func printTag(ctx context.Context, tag *tt2.Tag, opts *options) error {
	result, err := tag.Read(ctx)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(opts.out, "%s\n%s\n", tag.Summary(), result.CC)
	if opts.cfg.Debug {
		_, _ = fmt.Fprint(opts.out, hex.Dump(result.Image))
	}

	if !result.CC.IsNDEFFormatted() {
		_, _ = fmt.Fprintln(opts.out, "Tag is not NDEF formatted")
		return nil
	}

	raw, err := result.NDEF()
	if errors.Is(err, tt2.ErrNoNDEF) || errors.Is(err, tt2.ErrTLVDataTooShort) {
		_, _ = fmt.Fprintln(opts.out, "No NDEF message")
		return nil
	}
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		_, _ = fmt.Fprintln(opts.out, "Empty NDEF message")
		return nil
	}

	var msg ndef.Message
	if _, err := msg.Unmarshal(raw); err != nil {
		return fmt.Errorf("%w: %w", tt2.ErrInvalidNDEF, err)
	}
	printRecords(opts.out, &msg)
	return nil
}

func printRecords(w io.Writer, msg *ndef.Message) {
	for i, rec := range msg.Records {
		payload, err := rec.Payload()
		if err != nil {
			_, _ = fmt.Fprintf(w, "Record %d: TNF=%d Type=%q (bad payload: %v)\n", i, rec.TNF(), rec.Type(), err)
			continue
		}
		data := payload.Marshal()
		if rec.TNF() == ndef.NFCForumWellKnownType && rec.Type() == "T" && len(data) > 0 {
			langLen := int(data[0] & 0x3F)
			if len(data) >= 1+langLen {
				_, _ = fmt.Fprintf(w, "Record %d: Text %q\n", i, data[1+langLen:])
				continue
			}
		}
		_, _ = fmt.Fprintf(w, "Record %d: TNF=%d Type=%q Payload=%X\n", i, rec.TNF(), rec.Type(), data)
	}
}

func runWriteText(ctx context.Context, rd reader, opts *options) error {
	err := withTag(ctx, rd, opts.cfg, func(ctx context.Context, tag *tt2.Tag) error {
		return tag.WriteText(ctx, opts.arg)
	})
	if err != nil {
		return fmt.Errorf("write operation failed: %w", err)
	}
	_, _ = fmt.Fprintf(opts.out, "Successfully wrote text to tag: %q\n", opts.arg)
	return nil
}

func runWriteURI(ctx context.Context, rd reader, opts *options) error {
	msg := &ndef.Message{Records: []*ndef.Record{ndef.NewURIRecord(opts.arg)}}
	err := withTag(ctx, rd, opts.cfg, func(ctx context.Context, tag *tt2.Tag) error {
		return tag.WriteMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("write operation failed: %w", err)
	}
	_, _ = fmt.Fprintf(opts.out, "Successfully wrote URI to tag: %s\n", opts.arg)
	return nil
}

func runEmulate(ctx context.Context, rd reader, opts *options) error {
	timeout := opts.cfg.Timeouts.Emulate
	_, _ = fmt.Fprintf(opts.out, "Emulating tag with text %q for up to %v...\n", opts.arg, timeout)
	if err := tt2.Emulate(ctx, rd, ndef.NewTextMessage(opts.arg, "en"), timeout); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(opts.out, "Emulation finished")
	return nil
}

func runDetect(ctx context.Context, rd reader, opts *options) error {
	return withTag(ctx, rd, opts.cfg, func(ctx context.Context, tag *tt2.Tag) error {
		if _, err := tag.DetectVariant(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(opts.out, tag.Summary())
		if opts.cfg.Debug {
			_, _ = fmt.Fprint(opts.out, tag.DebugInfo(ctx))
		}
		return nil
	})
}
