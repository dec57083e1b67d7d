// Copyright (C) 2025 Valentin Breiz. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Per-operation timeouts of the HTTP control surface. Uploads move whole
// images, so they get a far larger budget than the quick control calls.
const (
	httpPingTimeout   = 5 * time.Second
	httpUploadTimeout = 300 * time.Second
	httpRunTimeout    = 10 * time.Second
	httpStatusTimeout = 5 * time.Second
	httpLogTimeout    = 30 * time.Second
	httpResetTimeout  = 10 * time.Second
)

// boardNetwork drives a target whose agent exposes the control operations
// over HTTP, typically a bridge board on the local network.
type boardNetwork struct {
	endpoint string
}

func newBoardNetwork(endpoint string) *boardNetwork {
	return &boardNetwork{endpoint: strings.TrimSuffix(endpoint, "/")}
}

func (b *boardNetwork) newRequest(ctx context.Context, method string, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, b.endpoint+path, body)
}

func (b *boardNetwork) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, httpPingTimeout)
	defer cancel()

	req, err := b.newRequest(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return sessionError(KindConnection, "target unreachable at %s: %w", b.endpoint, err)
	}
	defer res.Body.Close()
	io.ReadAll(res.Body) // Avoid closing connection prematurely.
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return sessionError(KindConnection, "got non-OK from target: %s", res.Status)
	}
	return nil
}

func (b *boardNetwork) UploadImage(ctx context.Context, image io.Reader, size int64) error {
	ctx, cancel := context.WithTimeout(ctx, httpUploadTimeout)
	defer cancel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("iso", "test.iso")
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, image); err != nil {
		return sessionError(KindTransfer, "failed to read the image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return err
	}

	payload := body.Bytes()
	reader, finish := progressReader(int64(len(payload)), bytes.NewReader(payload))
	defer finish()

	req, err := b.newRequest(ctx, http.MethodPost, "/upload", reader)
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(payload))
	req.Header.Set("Content-Type", writer.FormDataContentType())

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return sessionError(KindTransfer, "upload failed: %w", err)
	}
	defer res.Body.Close()
	io.ReadAll(res.Body) // Avoid closing connection prematurely.
	if res.StatusCode != http.StatusOK {
		return sessionError(KindTransfer, "got non-OK from target: %s", res.Status)
	}
	return nil
}

func (b *boardNetwork) StartRun(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, httpRunTimeout)
	defer cancel()

	req, err := b.newRequest(ctx, http.MethodPost, "/run", nil)
	if err != nil {
		return err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return sessionError(KindConnection, "failed to start the run: %w", err)
	}
	defer res.Body.Close()
	io.ReadAll(res.Body) // Avoid closing connection prematurely.
	if res.StatusCode != http.StatusOK {
		return sessionError(KindProtocol, "got non-OK from target: %s", res.Status)
	}
	return nil
}

func (b *boardNetwork) QueryStatus(ctx context.Context) (BoardStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, httpStatusTimeout)
	defer cancel()

	req, err := b.newRequest(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return BoardStatus{}, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return BoardStatus{}, sessionError(KindConnection, "status query failed: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return BoardStatus{}, err
	}
	if res.StatusCode != http.StatusOK {
		return BoardStatus{}, sessionError(KindProtocol, "got non-OK from target: %s", res.Status)
	}

	status := BoardStatus{Progress: -1}
	if err := json.Unmarshal(body, &status); err != nil {
		return BoardStatus{}, sessionError(KindProtocol, "malformed status response: %w", err)
	}
	return status, nil
}

func (b *boardNetwork) FetchLog(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, httpLogTimeout)
	defer cancel()

	req, err := b.newRequest(ctx, http.MethodGet, "/uart-log", nil)
	if err != nil {
		return nil, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, sessionError(KindConnection, "log fetch failed: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, sessionError(KindProtocol, "got non-OK from target: %s", res.Status)
	}
	return body, nil
}

func (b *boardNetwork) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, httpResetTimeout)
	defer cancel()

	req, err := b.newRequest(ctx, http.MethodPost, "/reset", nil)
	if err != nil {
		return err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return sessionError(KindConnection, "failed to reset the target: %w", err)
	}
	defer res.Body.Close()
	io.ReadAll(res.Body) // Avoid closing connection prematurely.
	if res.StatusCode != http.StatusOK {
		return sessionError(KindProtocol, "got non-OK from target: %s", res.Status)
	}
	return nil
}

func (b *boardNetwork) Close() error {
	return nil
}
