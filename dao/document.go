package dao

import (
	"errors"

	"study-assistant-backend/model"

	"gorm.io/gorm"
)

func GetDocumentByID(id string) (*model.Document, error) {
	var doc model.Document
	if err := DB.Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func GetDocumentsByIDs(ids []string) ([]model.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var docs []model.Document
	if err := DB.Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func GetDocumentsBySubject(subjectID string) ([]model.Document, error) {
	var docs []model.Document
	if err := DB.Where("subject_id = ?", subjectID).
		Order("id DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// AppendDocumentTags merges new tags into the document row, keeping existing
// ones and their order. Triggered by file analysis; never removes tags.
func AppendDocumentTags(id string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	var doc model.Document
	if err := DB.Where("id = ?", id).First(&doc).Error; err != nil {
		return err
	}

	seen := make(map[string]bool, len(doc.Tags))
	merged := doc.Tags
	for _, t := range doc.Tags {
		seen[t] = true
	}
	for _, t := range tags {
		if !seen[t] {
			merged = append(merged, t)
			seen[t] = true
		}
	}

	return DB.Model(&model.Document{}).
		Where("id = ?", id).
		Update("tags", merged).Error
}
