package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Azure/azure-event-hubs-processor-go"
	"github.com/Azure/azure-event-hubs-processor-go/internal/common"
	"github.com/Azure/azure-event-hubs-processor-go/persist"
	"github.com/Azure/azure-event-hubs-processor-go/storage"
	"github.com/Azure/azure-event-hubs-processor-go/storage/postgres"
	"github.com/Azure/azure-event-hubs-processor-go/storage/s3"
)

const (
	storeMemory   = "memory"
	storeFile     = "file"
	storeBlob     = "blob"
	storeS3       = "s3"
	storePostgres = "postgres"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&namespace, "namespace", "", "namespace of the Event Hub")
	rootCmd.PersistentFlags().StringVar(&hubName, "hub", "", "name of the Event Hub")
	rootCmd.PersistentFlags().StringVar(&connStr, "connection-string", "", "Event Hub connection string supplying namespace and hub; defaults to EVENTHUB_CONNECTION_STRING")
	rootCmd.PersistentFlags().StringVar(&consumerGroup, "consumer-group", eventhub.DefaultConsumerGroup, "consumer group of the checkpoints")
	rootCmd.PersistentFlags().StringVar(&store, "store", storeFile, "checkpoint store: memory, file, blob, s3 or postgres")
	rootCmd.PersistentFlags().StringVar(&directory, "dir", ".checkpoints", "directory of the file store")
	rootCmd.PersistentFlags().StringVar(&container, "container", "checkpoints", "blob container or s3 bucket holding checkpoints")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "optional .env file with store credentials and EPH_ settings")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug level logging")
}

var (
	namespace, hubName, consumerGroup string
	connStr                           string
	store, directory, container       string
	envFile                           string
	debug                             bool

	rootCmd = &cobra.Command{
		Use:              "ephcheckpoint",
		Short:            "ephcheckpoint inspects checkpoint stores and simulates the event processor host checkpointing",
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				log.SetLevel(log.DebugLevel)
			}
			if envFile != "" {
				return godotenv.Load(envFile)
			}
			return nil
		},
	}
)

// Execute kicks off the command line
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func checkHubFlags() error {
	if connStr == "" {
		connStr = os.Getenv("EVENTHUB_CONNECTION_STRING")
	}
	if connStr != "" && (namespace == "" || hubName == "") {
		parsed, err := common.ParsedConnectionFromStr(connStr)
		if err != nil {
			return err
		}
		if namespace == "" {
			namespace = parsed.Namespace
		}
		if hubName == "" {
			hubName = parsed.HubName
		}
	}

	if namespace == "" {
		return errors.New("namespace is required")
	}

	if hubName == "" {
		return errors.New("hub is required")
	}

	if consumerGroup == "" {
		return errors.New("consumer-group is required")
	}
	return nil
}

// newPersister builds the checkpoint store named by --store. Credentials for the remote stores come from the
// environment.
func newPersister(ctx context.Context) (persist.CheckpointPersister, func(), error) {
	noop := func() {}
	switch store {
	case storeMemory:
		return persist.NewMemoryPersister(), noop, nil
	case storeFile:
		p, err := persist.NewFilePersister(directory)
		return p, noop, err
	case storeBlob:
		p, err := newBlobPersister(ctx)
		if err != nil {
			return nil, noop, err
		}
		return p, noop, p.EnsureStore(ctx)
	case storeS3:
		p, err := s3.New(s3.Options{
			Endpoint:        os.Getenv("EPH_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("EPH_S3_ACCESS_KEY"),
			SecretAccessKey: os.Getenv("EPH_S3_SECRET_KEY"),
			Bucket:          container,
			Secure:          os.Getenv("EPH_S3_INSECURE") == "",
		})
		if err != nil {
			return nil, noop, err
		}
		return p, noop, p.EnsureStore(ctx)
	case storePostgres:
		p, err := postgres.New(ctx, postgres.Config{DSN: os.Getenv("EPH_POSTGRES_DSN")})
		if err != nil {
			return nil, noop, err
		}
		closer := func() {
			if err := p.Close(); err != nil {
				log.Warnln(err)
			}
		}
		if err := p.EnsureStore(ctx); err != nil {
			closer()
			return nil, noop, err
		}
		return p, closer, nil
	default:
		return nil, noop, errors.Errorf("unknown checkpoint store %q", store)
	}
}

func newBlobPersister(ctx context.Context) (*storage.BlobPersister, error) {
	if connStr := os.Getenv("EPH_STORAGE_CONNECTION_STRING"); connStr != "" {
		return storage.NewBlobPersisterFromConnectionString(connStr, container)
	}

	accountName := os.Getenv("EPH_STORAGE_ACCOUNT_NAME")
	if accountName == "" {
		return nil, errors.New("EPH_STORAGE_CONNECTION_STRING or EPH_STORAGE_ACCOUNT_NAME is required for the blob store")
	}

	credential, err := storage.NewAADCredential(ctx, storage.AADCredentialWithEnvironmentVars())
	if err != nil {
		return nil, err
	}
	env, err := storage.AzureEnvironmentFromEnvironmentVars()
	if err != nil {
		return nil, err
	}
	return storage.NewBlobPersister(azblob.Credential(credential), accountName, container, *env)
}
