package common

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	connStrRegex = regexp.MustCompile(`Endpoint=sb:\/\/(?P<Host>.+?);SharedAccessKeyName=(?P<KeyName>.+?);SharedAccessKey=(?P<Key>[^;]+)(;EntityPath=(?P<HubName>.+))?`)
	hostStrRegex = regexp.MustCompile(`^(?P<Namespace>.+?)\.(.+?)\/?$`)
)

const (
	defaultStorageSuffix   = "core.windows.net"
	defaultStorageProtocol = "https"
)

type (
	// ParsedConn is the structure of a parsed Event Hub connection string.
	ParsedConn struct {
		Host      string
		Suffix    string
		Namespace string
		HubName   string
		KeyName   string
		Key       string
	}

	// ParsedStorageConn is the structure of a parsed Azure Storage account connection string.
	ParsedStorageConn struct {
		Protocol    string
		AccountName string
		AccountKey  string
		Suffix      string
		BlobURL     string
	}
)

// newParsedConnection is a constructor for a parsedConn and verifies each of the inputs is non-null.
func newParsedConnection(host, suffix, namespace, hubName, keyName, key string) (*ParsedConn, error) {
	if host == "" || keyName == "" || key == "" {
		return nil, errors.New("connection string contains an empty entry")
	}
	return &ParsedConn{
		Host:      "amqps://" + host,
		Suffix:    suffix,
		Namespace: namespace,
		KeyName:   keyName,
		Key:       key,
		HubName:   hubName,
	}, nil
}

// ParsedConnectionFromStr takes a string connection string from the Azure portal and returns the parsed representation.
func ParsedConnectionFromStr(connStr string) (*ParsedConn, error) {
	matches := connStrRegex.FindStringSubmatch(connStr)
	if matches == nil {
		return nil, errors.New("connection string is not an Event Hubs connection string")
	}
	namespaceMatches := hostStrRegex.FindStringSubmatch(matches[1])
	if namespaceMatches == nil {
		return nil, errors.Errorf("connection string endpoint %q has no namespace", matches[1])
	}
	return newParsedConnection(matches[1], namespaceMatches[2], namespaceMatches[1], matches[5], matches[2], matches[3])
}

// ParsedStorageConnectionFromStr parses an Azure Storage connection string of the form
// DefaultEndpointsProtocol=https;AccountName=...;AccountKey=...;EndpointSuffix=core.windows.net
func ParsedStorageConnectionFromStr(connStr string) (*ParsedStorageConn, error) {
	parsed := &ParsedStorageConn{
		Protocol: defaultStorageProtocol,
		Suffix:   defaultStorageSuffix,
	}

	for _, part := range strings.Split(connStr, ";") {
		if part == "" {
			continue
		}
		idx := strings.Index(part, "=")
		if idx < 1 {
			return nil, errors.Errorf("connection string segment %q is not a key=value pair", part)
		}
		key, value := part[:idx], part[idx+1:]
		switch strings.ToLower(key) {
		case "defaultendpointsprotocol":
			parsed.Protocol = value
		case "accountname":
			parsed.AccountName = value
		case "accountkey":
			parsed.AccountKey = value
		case "endpointsuffix":
			parsed.Suffix = value
		case "blobendpoint":
			parsed.BlobURL = strings.TrimSuffix(value, "/")
		}
	}

	if parsed.AccountName == "" || parsed.AccountKey == "" {
		return nil, errors.New("storage connection string requires AccountName and AccountKey")
	}
	if parsed.BlobURL == "" {
		parsed.BlobURL = parsed.Protocol + "://" + parsed.AccountName + ".blob." + parsed.Suffix
	}
	return parsed, nil
}
