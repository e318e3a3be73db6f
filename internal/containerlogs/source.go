// Package containerlogs is the concrete "stream of log lines for a named
// container, cancellable" collaborator the Log Stream Handler treats as
// external (spec §4.7). It streams Kubernetes pod logs.
package containerlogs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ErrNotFound is returned when the named container has no running pod.
var ErrNotFound = fmt.Errorf("containerlogs: container not found")

const tailLines = int64(100)

// Source opens log streams against a Kubernetes cluster.
type Source struct {
	clientset *kubernetes.Clientset
	namespace string
}

// NewSource builds a Source, preferring in-cluster config and falling back
// to $KUBECONFIG (or ~/.kube/config), matching the bootstrap order the
// gateway's control-plane sibling uses.
func NewSource(namespace string) (*Source, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("containerlogs: loading kube config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("containerlogs: building clientset: %w", err)
	}

	return &Source{clientset: clientset, namespace: namespace}, nil
}

func getConfig() (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// Open starts a follow=true, timestamps=true, tail=100 log stream for the
// named container's pod. The returned ReadCloser is the raw stream; the Log
// Stream Handler owns newline buffering and UTF-8 decoding. On NotFound or
// transport error the caller sends an error frame and does not start a task
// (§4.7).
func (s *Source) Open(ctx context.Context, containerName string) (io.ReadCloser, error) {
	opts := &corev1.PodLogOptions{
		Follow:     true,
		Timestamps: true,
		TailLines:  int64Ptr(tailLines),
		Container:  containerName,
	}

	req := s.clientset.CoreV1().Pods(s.namespace).GetLogs(containerName, opts)
	stream, err := req.Stream(ctx)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("containerlogs: opening stream for %q: %w", containerName, err)
	}
	return stream, nil
}

func int64Ptr(v int64) *int64 { return &v }
