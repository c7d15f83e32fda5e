package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

// ArchivePrefix is the key prefix of every deployment archive.
const ArchivePrefix = "deployments/"

// MessageSigner signs archive bodies. *crypto.Signer implements it.
type MessageSigner interface {
	SignMessage(msg []byte) (string, error)
}

// ArchivedDeployment is the object written for each resolved deployment.
// Signature, when present, is an EIP-191 signature over Body made by the
// deployer key.
type ArchivedDeployment struct {
	Body      json.RawMessage `json:"body"`
	Signer    string          `json:"signer,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

// archiveBody is the signed payload of an ArchivedDeployment.
type archiveBody struct {
	ID         string               `json:"id"`
	SessionID  string               `json:"sessionId"`
	Status     string               `json:"status"`
	Attempt    int                  `json:"attempt"`
	Draft      domain.ContractDraft `json:"draft"`
	Address    string               `json:"address,omitempty"`
	TxHash     string               `json:"txHash,omitempty"`
	Deployer   string               `json:"deployer,omitempty"`
	Error      string               `json:"error,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
	ResolvedAt time.Time            `json:"resolvedAt"`
}

// Archiver implements domain.DeploymentArchiver by writing one JSON object
// per deployment under deployments/YYYY/MM/{id}.json.
type Archiver struct {
	writer     domain.BlobWriter
	reader     domain.BlobReader
	signer     MessageSigner
	signerAddr string
}

// NewArchiver creates an Archiver. signer may be nil, in which case archives
// are written unsigned.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, signer MessageSigner, signerAddr string) *Archiver {
	return &Archiver{writer: writer, reader: reader, signer: signer, signerAddr: signerAddr}
}

// ArchivePath returns the object key for rec.
func ArchivePath(rec domain.DeploymentRecord) string {
	return fmt.Sprintf("%s%s/%s.json", ArchivePrefix, rec.CreatedAt.UTC().Format("2006/01"), rec.ID)
}

// Archive writes rec and returns its object key.
func (a *Archiver) Archive(ctx context.Context, rec domain.DeploymentRecord) (string, error) {
	body, err := json.Marshal(archiveBody{
		ID:         rec.ID,
		SessionID:  rec.SessionID,
		Status:     string(rec.Status),
		Attempt:    rec.Attempt,
		Draft:      rec.Draft,
		Address:    rec.Address,
		TxHash:     rec.TxHash,
		Deployer:   rec.Deployer,
		Error:      rec.Error,
		CreatedAt:  rec.CreatedAt.UTC(),
		ResolvedAt: rec.ResolvedAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal archive %s: %w", rec.ID, err)
	}

	doc := ArchivedDeployment{Body: body}
	if a.signer != nil {
		sig, err := a.signer.SignMessage(body)
		if err != nil {
			return "", fmt.Errorf("s3blob: sign archive %s: %w", rec.ID, err)
		}
		doc.Signer, doc.Signature = a.signerAddr, sig
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal archive %s: %w", rec.ID, err)
	}

	path := ArchivePath(rec)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive %s: %w", rec.ID, err)
	}
	return path, nil
}

// Load reads back the archive stored at path.
func (a *Archiver) Load(ctx context.Context, path string) (ArchivedDeployment, error) {
	rc, err := a.reader.Get(ctx, path)
	if err != nil {
		return ArchivedDeployment{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return ArchivedDeployment{}, fmt.Errorf("s3blob: read archive %s: %w", path, err)
	}
	var doc ArchivedDeployment
	if err := json.Unmarshal(data, &doc); err != nil {
		return ArchivedDeployment{}, fmt.Errorf("s3blob: decode archive %s: %w", path, err)
	}
	return doc, nil
}

// List returns the archives written in the given month.
func (a *Archiver) List(ctx context.Context, month time.Time) ([]domain.BlobInfo, error) {
	return a.reader.List(ctx, ArchivePrefix+month.UTC().Format("2006/01")+"/")
}

var _ domain.DeploymentArchiver = (*Archiver)(nil)
