package storage

//	MIT License
//
//	Copyright (c) Microsoft Corporation. All rights reserved.
//
//	Permission is hereby granted, free of charge, to any person obtaining a copy
//	of this software and associated documentation files (the "Software"), to deal
//	in the Software without restriction, including without limitation the rights
//	to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
//	copies of the Software, and to permit persons to whom the Software is
//	furnished to do so, subject to the following conditions:
//
//	The above copyright notice and this permission notice shall be included in all
//	copies or substantial portions of the Software.
//
//	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
//	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
//	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
//	AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
//	LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
//	OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
//	SOFTWARE

import (
	"context"
	"os"
	"time"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/Azure/go-autorest/autorest/adal"
	"github.com/Azure/go-autorest/autorest/azure"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	refreshBeforeExpiry = 5 * time.Minute
	retryRefreshAfter   = 30 * time.Second
)

type (
	// AADCredentialConfig holds the Azure Active Directory settings used to authorize blob access
	AADCredentialConfig struct {
		TenantID     string
		ClientID     string
		ClientSecret string
		Env          *azure.Environment
	}

	// AADCredentialOption provides options for configuring AAD blob credentials
	AADCredentialOption func(*AADCredentialConfig) error
)

// AADCredentialWithEnvironmentVars configures the credential using the environment variables available
//
// 1. Client Credentials: attempt to authenticate with a Service Principal via "AZURE_TENANT_ID", "AZURE_CLIENT_ID" and
//    "AZURE_CLIENT_SECRET"
//
// 2. Managed Service Identity (MSI): attempt to authenticate via MSI, optionally a user assigned identity named by
//    "AZURE_CLIENT_ID"
//
// The Azure Environment used can be specified using the name of the Azure Environment set in "AZURE_ENVIRONMENT" var.
func AADCredentialWithEnvironmentVars() AADCredentialOption {
	return func(config *AADCredentialConfig) error {
		config.TenantID = os.Getenv("AZURE_TENANT_ID")
		config.ClientID = os.Getenv("AZURE_CLIENT_ID")
		config.ClientSecret = os.Getenv("AZURE_CLIENT_SECRET")

		if config.Env == nil {
			env, err := AzureEnvironmentFromEnvironmentVars()
			if err != nil {
				return err
			}
			config.Env = env
		}
		return nil
	}
}

// AADCredentialWithAzureEnvironment configures the Azure cloud the credential authenticates against
func AADCredentialWithAzureEnvironment(env *azure.Environment) AADCredentialOption {
	return func(config *AADCredentialConfig) error {
		config.Env = env
		return nil
	}
}

// NewAADCredential constructs a blob credential which authorizes with an Azure Active Directory token and refreshes
// it ahead of expiry
func NewAADCredential(ctx context.Context, opts ...AADCredentialOption) (azblob.TokenCredential, error) {
	config := &AADCredentialConfig{}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	if config.Env == nil {
		config.Env = &azure.PublicCloud
	}

	spToken, err := config.newServicePrincipalToken()
	if err != nil {
		return nil, err
	}

	if err := spToken.RefreshWithContext(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to acquire storage token")
	}

	refresher := func(credential azblob.TokenCredential) time.Duration {
		if err := spToken.RefreshWithContext(context.Background()); err != nil {
			log.Errorf("failed to refresh storage token: %v", err)
			return retryRefreshAfter
		}
		token := spToken.Token()
		credential.SetToken(token.AccessToken)
		return nextRefresh(token.Expires(), time.Now())
	}

	token := spToken.Token()
	credential := azblob.NewTokenCredential(token.AccessToken, refresher)
	return credential, nil
}

func (c *AADCredentialConfig) newServicePrincipalToken() (*adal.ServicePrincipalToken, error) {
	resource := c.Env.ResourceIdentifiers.Storage
	if resource == "" {
		resource = "https://storage.azure.com/"
	}

	if c.TenantID != "" && c.ClientID != "" && c.ClientSecret != "" {
		oauthConfig, err := adal.NewOAuthConfig(c.Env.ActiveDirectoryEndpoint, c.TenantID)
		if err != nil {
			return nil, err
		}
		return adal.NewServicePrincipalToken(*oauthConfig, c.ClientID, c.ClientSecret, resource)
	}

	var opts *adal.ManagedIdentityOptions
	if c.ClientID != "" {
		opts = &adal.ManagedIdentityOptions{ClientID: c.ClientID}
	}
	return adal.NewServicePrincipalTokenFromManagedIdentity(resource, opts)
}

// nextRefresh returns how long to wait before refreshing a token which expires at expiry
func nextRefresh(expiry, now time.Time) time.Duration {
	d := expiry.Sub(now) - refreshBeforeExpiry
	if d < retryRefreshAfter {
		return retryRefreshAfter
	}
	return d
}

// AzureEnvironmentFromEnvironmentVars resolves the Azure cloud named by "AZURE_ENVIRONMENT", defaulting to the public cloud
func AzureEnvironmentFromEnvironmentVars() (*azure.Environment, error) {
	envName := os.Getenv("AZURE_ENVIRONMENT")

	var env azure.Environment
	if envName == "" {
		env = azure.PublicCloud
	} else {
		var err error
		env, err = azure.EnvironmentFromName(envName)
		if err != nil {
			return nil, err
		}
	}
	return &env, nil
}
