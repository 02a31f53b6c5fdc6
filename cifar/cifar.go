// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cifar provides the CIFAR-10 dataset: download, decoding of the binary batches and
// conversion to tensors ready for training.
// Information about it in https://www.cs.toronto.edu/~kriz/cifar.html
package cifar

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/optbench/cifaropt/downloader"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	C10Url     = "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz"
	C10TarName = "cifar-10-binary.tar.gz"
	C10SubDir  = "cifar-10-batches-bin"
	C10Hash    = "c4a38c50a1bc5f3a1c5537f2155ab9d68f9f25eb1ed8d9ddda3db29a59bca1dd"

	// NumTrainExamples is the number of examples in the 5 training batch files.
	NumTrainExamples = 50000

	// NumTestExamples is the number of examples in the test batch file.
	NumTestExamples = 10000

	// ExamplesPerFile in each of the binary batch files.
	ExamplesPerFile = 10000

	// NumClasses of CIFAR-10.
	NumClasses = 10
)

// Width, Height and Depth are the dimensions of the images.
const (
	Width  int = 32
	Height int = 32
	Depth  int = 3

	// ImageSize is the number of bytes (or values) of one image.
	ImageSize = Height * Width * Depth

	// recordSize is one label byte followed by the image.
	recordSize = 1 + ImageSize
)

// C10Labels are the names of the CIFAR-10 classes, indexed by label.
var C10Labels = []string{"airplane", "automobile", "bird", "cat", "deer", "dog", "frog", "horse", "ship", "truck"}

// DownloadCifar10 downloads and untars the binary version of CIFAR-10 under baseDir, if not there yet.
func DownloadCifar10(baseDir string) error {
	return downloader.DownloadAndUntarIfMissing(C10Url, baseDir, C10TarName, C10SubDir, C10Hash)
}

// RawImages holds images as raw 0-255 pixel values, shaped [Count, Height, Width, Depth], and
// their labels, from 0 to NumClasses-1.
//
// The slices may be shared with other RawImages (see Slice), so they must be treated as read-only.
type RawImages struct {
	Pixels []uint8
	Labels []int64
}

// Count returns the number of examples.
func (r RawImages) Count() int {
	return len(r.Labels)
}

// Validate checks that the number of pixels matches the number of labels, and that labels are valid classes.
func (r RawImages) Validate() error {
	if len(r.Pixels) != r.Count()*ImageSize {
		return errors.Errorf("%d labels require %d pixel values, got %d", r.Count(), r.Count()*ImageSize, len(r.Pixels))
	}
	for ii, label := range r.Labels {
		if label < 0 || label >= NumClasses {
			return errors.Errorf("label #%d is %d, it must be between 0 and %d", ii, label, NumClasses-1)
		}
	}
	return nil
}

// Slice returns the examples from start (inclusive) to end (exclusive), sharing the underlying data.
func (r RawImages) Slice(start, end int) RawImages {
	return RawImages{
		Pixels: r.Pixels[start*ImageSize : end*ImageSize],
		Labels: r.Labels[start:end],
	}
}

// Split holds the train and test partitions.
type Split struct {
	Train, Test RawImages
}

// Validate both partitions.
func (s *Split) Validate() error {
	if err := s.Train.Validate(); err != nil {
		return errors.WithMessage(err, "train split")
	}
	if err := s.Test.Validate(); err != nil {
		return errors.WithMessage(err, "test split")
	}
	return nil
}

// Provider returns the dataset split. It is called once, and the returned data is read-only afterwards.
type Provider interface {
	Load() (*Split, error)
}

// Cifar10 provides the CIFAR-10 dataset, downloading it into DataDir if needed.
type Cifar10 struct {
	DataDir string
}

var _ Provider = Cifar10{}

// Load implements Provider.
func (c Cifar10) Load() (*Split, error) {
	if err := DownloadCifar10(c.DataDir); err != nil {
		return nil, errors.WithMessage(err, "downloading CIFAR-10")
	}
	return LoadCifar10(c.DataDir)
}

// LoadCifar10 reads the already downloaded binary batches from baseDir.
// The training split is the concatenation of data_batch_1.bin to data_batch_5.bin, and the test split
// is test_batch.bin.
func LoadCifar10(baseDir string) (*Split, error) {
	split := &Split{}
	var err error
	trainFiles := make([]string, 0, NumTrainExamples/ExamplesPerFile)
	for fileIdx := range NumTrainExamples / ExamplesPerFile {
		trainFiles = append(trainFiles, path.Join(baseDir, C10SubDir, fmt.Sprintf("data_batch_%d.bin", fileIdx+1)))
	}
	split.Train, err = readBatchFiles(trainFiles, NumTrainExamples)
	if err != nil {
		return nil, err
	}
	split.Test, err = readBatchFiles([]string{path.Join(baseDir, C10SubDir, "test_batch.bin")}, NumTestExamples)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("Loaded CIFAR-10: %d train and %d test examples (%s)",
		split.Train.Count(), split.Test.Count(),
		humanize.Bytes(uint64(len(split.Train.Pixels)+len(split.Test.Pixels))))
	return split, nil
}

func readBatchFiles(files []string, numExamples int) (RawImages, error) {
	images := RawImages{
		Pixels: make([]uint8, 0, numExamples*ImageSize),
		Labels: make([]int64, 0, numExamples),
	}
	for _, dataFile := range files {
		f, err := os.Open(dataFile)
		if err != nil {
			return RawImages{}, errors.Wrapf(err, "opening data file %q", dataFile)
		}
		images, err = ReadRecords(bufio.NewReader(f), images)
		_ = f.Close()
		if err != nil {
			return RawImages{}, errors.WithMessagef(err, "reading %q", dataFile)
		}
	}
	if images.Count() != numExamples {
		return RawImages{}, errors.Errorf("read %d examples from %v, wanted %d", images.Count(), files, numExamples)
	}
	return images, nil
}

// ReadRecords reads binary CIFAR-10 records (one label byte followed by the image in
// channels-first order) until EOF, appending them to images.
// Pixels are reordered to [Height, Width, Depth].
func ReadRecords(r io.Reader, images RawImages) (RawImages, error) {
	var record [recordSize]byte
	for recordIdx := 0; ; recordIdx++ {
		_, err := io.ReadFull(r, record[:])
		if err == io.EOF {
			return images, nil
		}
		if err != nil {
			return images, errors.Wrapf(err, "reading record #%d", recordIdx)
		}
		images.Labels = append(images.Labels, int64(record[0]))
		images.Pixels = appendChannelsLast(images.Pixels, record[1:])
	}
}

// appendChannelsLast converts one image from [Depth, Height, Width] to [Height, Width, Depth].
func appendChannelsLast(pixels []uint8, image []byte) []uint8 {
	for h := 0; h < Height; h++ {
		for w := 0; w < Width; w++ {
			for d := 0; d < Depth; d++ {
				pixels = append(pixels, image[d*(Height*Width)+h*Width+w])
			}
		}
	}
	return pixels
}
