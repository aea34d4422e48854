package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/metadata"
	"github.com/stormrose-io/filegate/pkg/metadata/badgerstore"
	"github.com/stormrose-io/filegate/pkg/metadata/remote"
	"github.com/stormrose-io/filegate/pkg/repository"
	"github.com/stormrose-io/filegate/pkg/storage"
	storagefs "github.com/stormrose-io/filegate/pkg/storage/fs"
	storages3 "github.com/stormrose-io/filegate/pkg/storage/s3"
)

// CreateMetadataStore builds the configured metadata store.
//
// Supported types:
//   - "local": embedded BadgerDB store
//   - "remote": client for the transactional metadata service
func CreateMetadataStore(cfg MetadataConfig, registry *repository.Registry) (metadata.Store, error) {
	switch cfg.Type {
	case "local":
		return createLocalStore(cfg.Local)
	case "remote":
		client, err := CreateRemoteClient(cfg.Remote)
		if err != nil {
			return nil, err
		}
		return remote.NewStore(client, registry), nil
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q", cfg.Type)
	}
}

func createLocalStore(options map[string]any) (metadata.Store, error) {
	type LocalStoreConfig struct {
		Path       string `mapstructure:"path"`
		InMemory   bool   `mapstructure:"in_memory"`
		SyncWrites bool   `mapstructure:"sync_writes"`
	}

	var storeCfg LocalStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("decode local metadata store config: %w", err)
	}
	if storeCfg.Path == "" && !storeCfg.InMemory {
		storeCfg.Path = "filegate-metadata"
	}

	store, err := badgerstore.New(badgerstore.Config{
		Path:       storeCfg.Path,
		InMemory:   storeCfg.InMemory,
		SyncWrites: storeCfg.SyncWrites,
	})
	if err != nil {
		return nil, fmt.Errorf("create local metadata store: %w", err)
	}
	return store, nil
}

// CreateRemoteClient builds the transaction client for the remote
// metadata service from its option block.
func CreateRemoteClient(options map[string]any) (*remote.Client, error) {
	type RemoteStoreConfig struct {
		URL        string        `mapstructure:"url"`
		Timeout    time.Duration `mapstructure:"timeout"`
		MaxRetries int           `mapstructure:"max_retries"`
	}

	var storeCfg RemoteStoreConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &storeCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("build remote metadata store decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("decode remote metadata store config: %w", err)
	}

	client, err := remote.NewClient(remote.Config{
		BaseURL:    storeCfg.URL,
		Timeout:    storeCfg.Timeout,
		MaxRetries: storeCfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("create remote metadata client: %w", err)
	}
	return client, nil
}

// CreateStorageBackend builds the storage backend for one repository.
// Used as the engine's backend factory.
func CreateStorageBackend(ctx context.Context, repo *repository.Repository) (storage.Backend, error) {
	switch repo.StorageType {
	case repository.StorageFileSystem:
		store, err := storagefs.New(ctx, repo.PhysicalPath)
		if err != nil {
			return nil, fmt.Errorf("filesystem backend for %s: %w", repo.RepositoryID, err)
		}
		return store, nil
	case repository.StorageObjectStore:
		return createObjectStore(ctx, repo)
	default:
		return nil, fmt.Errorf("repository %s: unknown storage type %q", repo.RepositoryID, repo.StorageType)
	}
}

func createObjectStore(ctx context.Context, repo *repository.Repository) (storage.Backend, error) {
	if repo.ContainerID == "" {
		return nil, fmt.Errorf("object store for %s: containerId is required", repo.RepositoryID)
	}
	region := repo.Region
	if region == "" {
		region = "us-east-1"
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(region))

	// Custom endpoint for S3-compatible services (MinIO, Localstack).
	if repo.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               repo.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Static credentials when configured, otherwise the default chain.
	if repo.AccessID != "" && repo.AccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(repo.AccessID, repo.AccessKey, "")
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = 10
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for %s: %w", repo.RepositoryID, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for compatibility with MinIO/Localstack.
		if repo.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	store, err := storages3.New(storages3.Config{
		Client: client,
		Bucket: repo.ContainerID,
	})
	if err != nil {
		return nil, fmt.Errorf("object store for %s: %w", repo.RepositoryID, err)
	}

	logger.Info("object store backend initialized: repository=%s, bucket=%s, region=%s",
		repo.RepositoryID, repo.ContainerID, region)
	return store, nil
}

// CreateRepositoryLoader builds the registry loader for the configured
// repository source.
func CreateRepositoryLoader(cfg *Config) (repository.Loader, error) {
	switch cfg.Repositories.Source {
	case "file":
		return repository.FileLoader{Path: cfg.Repositories.Path}, nil
	case "remote":
		client, err := CreateRemoteClient(cfg.Metadata.Remote)
		if err != nil {
			return nil, err
		}
		return remote.RepositoryLoader{Client: client}, nil
	default:
		return nil, fmt.Errorf("unknown repository source: %q", cfg.Repositories.Source)
	}
}
