package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/semmidev/dbkeeper/internal/config"
	"github.com/semmidev/dbkeeper/internal/domain"
)

const azureName = "AzureBlob"

// Well-known Azurite development account.
const (
	devStoreAccount = "devstoreaccount1"
	devStoreKey     = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
	devStoreBlobURL = "http://127.0.0.1:10000/devstoreaccount1"
)

type azureStore struct {
	container azblob.ContainerURL
}

func NewAzureBlob(cfg *config.AzureConfig, logger Logger) (*RemoteStorage, error) {
	cs, err := parseConnectionString(cfg.ConnectionString)
	if err != nil {
		return nil, domain.NewConfigError("azureblob.connection_string", err.Error())
	}

	var credential azblob.Credential
	if cs.sas != "" {
		credential = azblob.NewAnonymousCredential()
	} else {
		credential, err = azblob.NewSharedKeyCredential(cs.accountName, cs.accountKey)
		if err != nil {
			return nil, domain.NewConfigError("azureblob.connection_string", fmt.Sprintf("invalid account key: %v", err))
		}
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(cs.endpoint)
	if err != nil {
		return nil, domain.NewConfigError("azureblob.connection_string", fmt.Sprintf("invalid blob endpoint: %v", err))
	}
	if cs.sas != "" {
		serviceURL.RawQuery = cs.sas
	}

	store := &azureStore{
		container: azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(cfg.ContainerName),
	}
	return newRemote(azureName, store, logger), nil
}

func (a *azureStore) put(ctx context.Context, key string, file *os.File, size int64, progress func(int64)) error {
	blobURL := a.container.NewBlockBlobURL(key)
	_, err := azblob.UploadFileToBlockBlob(ctx, file, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
		Progress:    progress,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: "application/gzip",
		},
	})
	if err != nil {
		return classifyAzure("upload", key, err)
	}
	return nil
}

func (a *azureStore) list(ctx context.Context, prefix string) ([]domain.StoredArtifact, error) {
	var objects []domain.StoredArtifact
	for marker := (azblob.Marker{}); marker.NotDone(); {
		listResponse, err := a.container.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: prefix,
		})
		if err != nil {
			return nil, classifyAzure("list", prefix, err)
		}

		for _, blob := range listResponse.Segment.BlobItems {
			var size int64
			if blob.Properties.ContentLength != nil {
				size = *blob.Properties.ContentLength
			}
			objects = append(objects, domain.StoredArtifact{
				Key:        blob.Name,
				Name:       path.Base(blob.Name),
				Size:       size,
				ModifiedAt: blob.Properties.LastModified,
			})
		}

		marker = listResponse.NextMarker
	}
	return objects, nil
}

func (a *azureStore) remove(ctx context.Context, obj domain.StoredArtifact) error {
	blobURL := a.container.NewBlockBlobURL(obj.Key)
	if _, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{}); err != nil {
		return classifyAzure("delete", obj.Key, err)
	}
	return nil
}

func (a *azureStore) get(ctx context.Context, obj domain.StoredArtifact) (io.ReadCloser, error) {
	blobURL := a.container.NewBlockBlobURL(obj.Key)
	downloadResponse, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, classifyAzure("download", obj.Key, err)
	}
	return downloadResponse.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20}), nil
}

// classifyAzure turns 401 and 403 responses into auth errors and every
// other failure into a network error.
func classifyAzure(op, key string, err error) error {
	var respErr interface{ Response() *http.Response }
	if errors.As(err, &respErr) {
		if resp := respErr.Response(); resp != nil && isAuthStatus(resp.StatusCode) {
			return domain.NewAuthError(azureName, op, key, err)
		}
	}
	return domain.NewNetworkError(azureName, op, key, err)
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

type connectionString struct {
	accountName string
	accountKey  string
	endpoint    string
	sas         string
}

// parseConnectionString understands account key, SAS and development
// storage connection strings.
func parseConnectionString(s string) (connectionString, error) {
	values := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return connectionString{}, fmt.Errorf("malformed segment %q", part)
		}
		values[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	if strings.EqualFold(values["usedevelopmentstorage"], "true") {
		return connectionString{accountName: devStoreAccount, accountKey: devStoreKey, endpoint: devStoreBlobURL}, nil
	}

	cs := connectionString{
		accountName: values["accountname"],
		accountKey:  values["accountkey"],
		endpoint:    strings.TrimSuffix(values["blobendpoint"], "/"),
		sas:         strings.TrimPrefix(values["sharedaccesssignature"], "?"),
	}

	if cs.endpoint == "" {
		if cs.accountName == "" {
			return connectionString{}, errors.New("AccountName or BlobEndpoint is required")
		}
		protocol := values["defaultendpointsprotocol"]
		if protocol == "" {
			protocol = "https"
		}
		suffix := values["endpointsuffix"]
		if suffix == "" {
			suffix = "core.windows.net"
		}
		cs.endpoint = fmt.Sprintf("%s://%s.blob.%s", protocol, cs.accountName, suffix)
	}

	if cs.sas == "" && (cs.accountName == "" || cs.accountKey == "") {
		return connectionString{}, errors.New("AccountName and AccountKey are required without a SharedAccessSignature")
	}

	return cs, nil
}
