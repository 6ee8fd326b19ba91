package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	namespace = "mynamespace"
	keyName   = "keyName"
	secret    = "superSecret"
	hubName   = "myhub"
	connStr   = "Endpoint=sb://" + namespace + ".servicebus.windows.net/;SharedAccessKeyName=" + keyName + ";SharedAccessKey=" + secret
)

func TestParsedConnectionFromStr(t *testing.T) {
	parsed, err := ParsedConnectionFromStr(connStr)
	require.NoError(t, err)
	assert.Equal(t, "amqps://"+namespace+".servicebus.windows.net/", parsed.Host)
	assert.Equal(t, namespace, parsed.Namespace)
	assert.Equal(t, keyName, parsed.KeyName)
	assert.Equal(t, secret, parsed.Key)
	assert.Equal(t, "", parsed.HubName)
}

func TestParsedConnectionFromStrWithEntityPath(t *testing.T) {
	parsed, err := ParsedConnectionFromStr(connStr + ";EntityPath=" + hubName)
	require.NoError(t, err)
	assert.Equal(t, namespace, parsed.Namespace)
	assert.Equal(t, secret, parsed.Key)
	assert.Equal(t, hubName, parsed.HubName)
}

func TestParsedConnectionFromStrInvalid(t *testing.T) {
	_, err := ParsedConnectionFromStr("not a connection string")
	assert.Error(t, err)
}

func TestParsedStorageConnectionFromStr(t *testing.T) {
	parsed, err := ParsedStorageConnectionFromStr("DefaultEndpointsProtocol=https;AccountName=acct;AccountKey=a2V5==;EndpointSuffix=core.chinacloudapi.cn")
	require.NoError(t, err)
	assert.Equal(t, "acct", parsed.AccountName)
	assert.Equal(t, "a2V5==", parsed.AccountKey)
	assert.Equal(t, "https://acct.blob.core.chinacloudapi.cn", parsed.BlobURL)
}

func TestParsedStorageConnectionFromStrBlobEndpoint(t *testing.T) {
	parsed, err := ParsedStorageConnectionFromStr("AccountName=devstoreaccount1;AccountKey=a2V5;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1/;")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:10000/devstoreaccount1", parsed.BlobURL)
	assert.Equal(t, defaultStorageSuffix, parsed.Suffix)
}

func TestParsedStorageConnectionFromStrInvalid(t *testing.T) {
	_, err := ParsedStorageConnectionFromStr("AccountName=acct")
	assert.Error(t, err)

	_, err = ParsedStorageConnectionFromStr("AccountName=acct;garbage")
	assert.Error(t, err)
}
