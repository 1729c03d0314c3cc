// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 提供 Omnibox 检索层用到的向量存储抽象：一个后端无关的
VectorStore 接口，加上 InMemory / Qdrant / Weaviate / Milvus / Pinecone
五种实现，供 retriever 包索引路由目录和 resolver 包索引订阅实体使用。

# 核心接口/类型

  - VectorStore — 向量数据库统一接口（AddDocuments / Search / Delete / Update / Count）
  - Clearable / DocumentLister — VectorStore 的可选能力接口
  - SemanticCache — 基于向量相似度的查询结果缓存

# 向量存储后端

  - InMemoryVectorStore — 默认后端，适用于小型目录，无需外部依赖
  - QdrantStore / WeaviateStore / MilvusStore / PineconeStore — 面向更大部署的
    外部后端，均满足 VectorStore 接口

# 工厂函数

NewVectorStoreFromConfig 和 NewEmbeddingProviderFromConfig 从全局 config.Config
一键创建对应的运行时实例，消除 config 包和 rag 包之间的手动映射。
*/
package rag
